package analysis

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies analysis failures.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindInvalidImage
	KindParsing
	KindUpstream
	KindUnavailable
)

// ErrUnavailable is returned when no model has been configured.
var ErrUnavailable = &Error{Kind: KindUnavailable, Message: "Gemini service is unavailable"}

// Error is a typed analysis failure that maps onto an HTTP status.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInvalidInput, KindInvalidImage:
		return http.StatusBadRequest
	case KindParsing:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func invalidInput(msg string) error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func upstreamError(err error) error {
	return &Error{Kind: KindUpstream, Message: "Gemini API error", Err: err}
}

// parsingError keeps at most 100 characters of the raw response in the message.
func parsingError(reason, raw string) error {
	msg := "Failed to parse Gemini API response: " + reason
	if raw != "" {
		if len(raw) > 100 {
			msg += "\nRaw response: " + raw[:100] + "..."
		} else {
			msg += "\nRaw response: " + raw
		}
	}
	return &Error{Kind: KindParsing, Message: msg}
}
