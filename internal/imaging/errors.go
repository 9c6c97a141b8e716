package imaging

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the image and import pipelines.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindNetwork      Kind = "network"
	KindServerStatus Kind = "server_status"
	KindDecode       Kind = "decode"
	KindFileRead     Kind = "file_read"
	KindRecordDecode Kind = "record_decode"
	KindCancelled    Kind = "cancelled"
)

// Error is the structured error returned by the loader, fetcher and importer.
type Error struct {
	Kind Kind
	Op   string
	Code int // HTTP status for KindServerStatus
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindServerStatus {
		return fmt.Sprintf("[%s] %s: status %d", e.Kind, e.Op, e.Code)
	}
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Description is a human readable summary suitable for display.
func (e *Error) Description() string {
	switch e.Kind {
	case KindInvalidInput:
		return "The image identifier is missing."
	case KindNetwork:
		return "The image service could not be reached."
	case KindServerStatus:
		return fmt.Sprintf("The image service responded with status %d.", e.Code)
	case KindDecode:
		return "The image data could not be decoded."
	case KindFileRead:
		return "A record file could not be read."
	case KindRecordDecode:
		return "A record file is not in the expected format."
	case KindCancelled:
		return "The import was cancelled."
	}
	return "Unknown error."
}

// RecoverySuggestion returns a hint for the user, or "" when there is none.
func (e *Error) RecoverySuggestion() string {
	switch e.Kind {
	case KindNetwork:
		return "Check your network connection and try again."
	case KindServerStatus:
		if e.Code >= 500 {
			return "The service may be temporarily unavailable. Try again later."
		}
		return "Verify that the card identifier is correct."
	case KindDecode:
		return "The image may be corrupt or in an unsupported format."
	case KindRecordDecode:
		return "Fix or remove the malformed record file and import again."
	}
	return ""
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Status creates a KindServerStatus error preserving the response code.
func Status(op string, code int) *Error {
	return &Error{Kind: KindServerStatus, Op: op, Code: code}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StatusCode returns the HTTP status carried by a KindServerStatus error.
func StatusCode(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindServerStatus {
		return e.Code, true
	}
	return 0, false
}

var (
	ErrEmptyIdentifier = errors.New("empty image identifier")
	ErrEmptyData       = errors.New("empty image data")
	ErrTooLarge        = errors.New("image dimensions too large")
)
