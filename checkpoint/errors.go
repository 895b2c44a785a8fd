package checkpoint

import "errors"

var (
	// ErrPathRequired indicates that no checkpoint location was configured.
	ErrPathRequired = errors.New("admsrelay checkpoint: path is required")
	// ErrMalformedCursor indicates that stored content could not be parsed.
	ErrMalformedCursor = errors.New("admsrelay checkpoint: malformed cursor")
)
