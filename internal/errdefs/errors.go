package errdefs

import (
	"errors"
	"fmt"
)

// Error kinds shared by every stage of the evaluation pipeline.
var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrExtractionFailure = errors.New("text extraction failed")
	ErrAIProtocol        = errors.New("ai protocol error")
	ErrAIService         = errors.New("ai service error")
	ErrStorage           = errors.New("storage error")
	ErrNotFound          = errors.New("not found")
)

// Error binds an error kind to the operation that raised it and its underlying cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidSubmission reports malformed caller input.
func InvalidSubmission(op, msg string) error {
	return &Error{Kind: ErrInvalidSubmission, Op: op, Msg: msg}
}

// ExtractionFailure wraps an OCR engine failure.
func ExtractionFailure(op string, err error) error {
	return &Error{Kind: ErrExtractionFailure, Op: op, Err: err}
}

// AIProtocol reports a reply from the model that does not honour the output contract.
func AIProtocol(op, msg string, err error) error {
	return &Error{Kind: ErrAIProtocol, Op: op, Msg: msg, Err: err}
}

// AIService wraps a failed round-trip to the AI provider.
func AIService(op string, err error) error {
	return &Error{Kind: ErrAIService, Op: op, Err: err}
}

// Storage wraps a persistence failure.
func Storage(op string, err error) error {
	return &Error{Kind: ErrStorage, Op: op, Err: err}
}

// KindOf returns the pipeline error kind carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidSubmission, ErrExtractionFailure, ErrAIProtocol, ErrAIService, ErrStorage, ErrNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Retryable reports whether resubmitting the same input may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrAIService) || errors.Is(err, ErrExtractionFailure)
}
