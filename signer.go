package admsrelay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the payload signature on outbound deliveries.
const SignatureHeader = "X-Adms-Signature"

// Signer computes HMAC-SHA256 signatures with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer for the given secret.
// An empty secret is a configuration error.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}

	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the lowercase hex signature of payload.
func (s *Signer) Sign(payload []byte) string {
	return Sign(payload, s.secret)
}

// Verify reports whether signature matches payload.
func (s *Signer) Verify(payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)

	return hmac.Equal(mac.Sum(nil), got)
}

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed with secret.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}
