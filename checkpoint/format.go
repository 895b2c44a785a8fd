package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/velmie/admsrelay"
)

func encode(cursor time.Time) []byte {
	return []byte(cursor.In(time.Local).Format(admsrelay.TimeLayout))
}

// decode parses a stored cursor. Blank content counts as not found.
func decode(raw []byte) (time.Time, bool, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return time.Time{}, false, nil
	}
	cursor, err := time.ParseInLocation(admsrelay.TimeLayout, text, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q: %w", ErrMalformedCursor, text, err)
	}

	return cursor, true, nil
}
