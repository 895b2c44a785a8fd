package admsrelay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// TimeLayout is the wall-clock layout used for payload times and the persisted cursor.
	TimeLayout = "2006-01-02 15:04:05"

	// PINSuffixLength is the number of trailing characters stripped from subject identifiers.
	PINSuffixLength = 5
	// UnknownPIN replaces identifiers too short to carry a suffix.
	UnknownPIN = "0"
)

// FingerprintEvent is one successful authentication read from the access log.
type FingerprintEvent struct {
	// Key identifies the terminal (node) that produced the record.
	Key int64
	// PIN is the raw subject identifier including its fixed 5-character suffix.
	PIN string
	// LoggedAt is the terminal time of the event, rendered as "waktu".
	LoggedAt time.Time
	// ServerLoggedAt is the time the record reached the log and drives the cursor.
	// When zero, LoggedAt is used instead.
	ServerLoggedAt time.Time
	// Status is the authentication result code.
	Status int
	// Verification is the verification method code.
	Verification int
	// WorkCode is the function key pressed on the terminal, as stored by the log.
	WorkCode string
}

// CursorTime returns the timestamp the cursor advances to once the event is handled.
func (e FingerprintEvent) CursorTime() time.Time {
	if e.ServerLoggedAt.IsZero() {
		return e.LoggedAt
	}

	return e.ServerLoggedAt
}

// Payload is the canonical JSON body of one event. It is signed and sent as is.
type Payload []byte

// String returns the payload as text.
func (p Payload) String() string {
	return string(p)
}

// payloadFields keeps the keys in sorted order so that the encoding is canonical.
type payloadFields struct {
	Key          int64  `json:"key"`
	PIN          string `json:"pin"`
	Status       int    `json:"status"`
	Verification int    `json:"verifikasi"`
	Time         string `json:"waktu"`
	WorkCode     int    `json:"workcode"`
}

// BuildPayload converts an event into its canonical payload.
func BuildPayload(event FingerprintEvent) (Payload, error) {
	workCode, err := parseWorkCode(event.WorkCode)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalWithOption(payloadFields{
		Key:          event.Key,
		PIN:          StripPIN(event.PIN),
		Status:       event.Status,
		Verification: event.Verification,
		Time:         event.LoggedAt.Format(TimeLayout),
		WorkCode:     workCode,
	}, json.DisableHTMLEscape())
	if err != nil {
		return nil, fmt.Errorf("admsrelay: encode payload: %w", err)
	}

	return Payload(body), nil
}

// StripPIN removes the trailing suffix from a subject identifier.
// Identifiers shorter than the suffix, including empty ones, map to UnknownPIN.
func StripPIN(pin string) string {
	runes := []rune(pin)
	if len(runes) < PINSuffixLength {
		return UnknownPIN
	}

	return string(runes[:len(runes)-PINSuffixLength])
}

func parseWorkCode(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWorkCode, raw)
	}

	return code, nil
}
