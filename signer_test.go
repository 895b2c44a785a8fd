package admsrelay

import (
	"errors"
	"testing"
)

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign([]byte("what do ya want for nothing?"), []byte("Jefe"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Fatalf("unexpected signature %s", got)
	}
}

func TestSignerSignVerify(t *testing.T) {
	signer, err := NewSigner("secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	payload := []byte(`{"key":1}`)
	sig := signer.Sign(payload)

	if sig != signer.Sign(payload) {
		t.Fatalf("signature must be deterministic")
	}
	if !signer.Verify(payload, sig) {
		t.Fatalf("expected signature to verify")
	}
	if signer.Verify([]byte(`{"key":2}`), sig) {
		t.Fatalf("expected tampered payload to fail")
	}
	if signer.Verify(payload, "not-hex") {
		t.Fatalf("expected malformed signature to fail")
	}

	other, _ := NewSigner("other")
	if other.Sign(payload) == sig {
		t.Fatalf("different secrets must produce different signatures")
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner(""); !errors.Is(err, ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}
