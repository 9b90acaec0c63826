package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExpired  = errors.New("job output has expired")
	ErrNotReady = errors.New("job is not finished")
	ErrConflict = errors.New("job already exists")

	ErrUnsupportedFormat = errors.New("unsupported format")
)

// ErrRejected is wrapped by every admission rejection so callers can
// tell a refused request apart from an internal failure.
var ErrRejected = errors.New("admission rejected")

var (
	ErrMissingFile        = fmt.Errorf("%w: no file provided", ErrRejected)
	ErrInvalidAction      = fmt.Errorf("%w: invalid action", ErrRejected)
	ErrMissingFormat      = fmt.Errorf("%w: missing target format", ErrRejected)
	ErrInvalidFormat      = fmt.Errorf("%w: invalid target format", ErrRejected)
	ErrDisallowedFilename = fmt.Errorf("%w: file ignored", ErrRejected)
	ErrInvalidParams      = fmt.Errorf("%w: invalid parameters", ErrRejected)
	ErrQuotaExceeded      = fmt.Errorf("%w: too many pending jobs", ErrRejected)
)

// maxErrorLength bounds the message stored on a failed job.
const maxErrorLength = 800

// SafeErrorMessage renders err for storage on a job row, truncated to a
// bounded length.
func SafeErrorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if msg == "" {
		return "unknown error"
	}
	if len(msg) > maxErrorLength {
		cut := maxErrorLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
