package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidSource marks a source path that can never be processed.
	ErrInvalidSource = errors.New("invalid source path")
)

type ErrorKind string

const (
	KindSourceOpen ErrorKind = "source_open"
	KindSinkOpen   ErrorKind = "sink_open"
	KindDetection  ErrorKind = "detection"
	KindStore      ErrorKind = "store"
	KindUnexpected ErrorKind = "unexpected"
)

var (
	ErrSourceOpen = &kindError{KindSourceOpen}
	ErrSinkOpen   = &kindError{KindSinkOpen}
	ErrDetection  = &kindError{KindDetection}
	ErrStore      = &kindError{KindStore}
	ErrUnexpected = &kindError{KindUnexpected}
)

type kindError struct{ kind ErrorKind }

func (e *kindError) Error() string { return string(e.kind) }

// ProcessingError is a classified failure inside a run.
type ProcessingError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewProcessingError(kind ErrorKind, op string, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, Op: op, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind.
func (e *ProcessingError) Is(target error) bool {
	k, ok := target.(*kindError)
	return ok && k.kind == e.Kind
}

// KindOf classifies err, defaulting to KindUnexpected.
func KindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnexpected
}
