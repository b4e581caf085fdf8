package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/surveyforge/schema"
)

// TransportErrorKind classifies generation transport failures for user-facing hints.
type TransportErrorKind string

const (
	// TransportErrorUnknown is an uncategorized transport failure.
	TransportErrorUnknown TransportErrorKind = "unknown"
	// TransportErrorUnavailable indicates the generation service is unreachable.
	TransportErrorUnavailable TransportErrorKind = "unavailable"
	// TransportErrorStatus indicates a non-success response status.
	TransportErrorStatus TransportErrorKind = "status"
	// TransportErrorEmptyBody indicates a success status without a readable stream.
	TransportErrorEmptyBody TransportErrorKind = "empty_body"
	// TransportErrorTimeout indicates the request timed out.
	TransportErrorTimeout TransportErrorKind = "timeout"
	// TransportErrorCanceled indicates the request was canceled.
	TransportErrorCanceled TransportErrorKind = "canceled"
	// TransportErrorStream indicates the stream broke after it started.
	TransportErrorStream TransportErrorKind = "stream"
)

// TransportError wraps transport failures with a stable classification.
type TransportError struct {
	Kind    TransportErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

// NewTransportError constructs a classified transport error.
func NewTransportError(kind TransportErrorKind, op string, err error) *TransportError {
	return &TransportError{Kind: kind, Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	if e.Message != "" {
		if e.Status != 0 {
			return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("generation %s failed with status %d", e.Op, e.Status)
	}
	if e.Op != "" {
		return fmt.Sprintf("generation %s failed", e.Op)
	}
	return "transport error"
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClassifyTransportError wraps err in a TransportError unless it already is one.
func ClassifyTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewTransportError(TransportErrorCanceled, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransportError(TransportErrorTimeout, op, err)
	case errors.Is(err, schema.ErrEmptyBody):
		return NewTransportError(TransportErrorEmptyBody, op, err)
	default:
		return NewTransportError(TransportErrorUnknown, op, err)
	}
}

func transportErrorLines(err *TransportError) (string, []string) {
	if err == nil {
		return "The generation service failed.", nil
	}
	switch err.Kind {
	case TransportErrorUnavailable:
		return "The generation service is unavailable.", []string{
			"Check that the backend is running and reachable.",
		}
	case TransportErrorStatus:
		line := fmt.Sprintf("The generation service rejected the request (status %d).", err.Status)
		if err.Message != "" {
			line = fmt.Sprintf("The generation service rejected the request: %s", err.Message)
		}
		if err.Status == 429 {
			return line, []string{"Wait a moment and try again."}
		}
		return line, nil
	case TransportErrorEmptyBody:
		return "The generation service returned an empty response.", []string{
			"Try again; the backend may be overloaded.",
		}
	case TransportErrorTimeout:
		return "The generation request timed out.", []string{
			"Retry, or shorten the prompt.",
		}
	case TransportErrorCanceled:
		return "The generation request was canceled.", nil
	case TransportErrorStream:
		return "The generation stream was interrupted.", nil
	default:
		return fmt.Sprintf("Generation failed: %v", err), nil
	}
}

// ErrorMessageText renders err as a user-facing message.
func ErrorMessageText(err error) string {
	if err == nil {
		return ""
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		line, hints := transportErrorLines(transportErr)
		for _, hint := range hints {
			line += "\n" + hint
		}
		return line
	}
	return fmt.Sprintf("Generation failed: %v", err)
}
