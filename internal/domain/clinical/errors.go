package clinical

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindUnsupportedFormat       ErrorKind = "UnsupportedFormat"
	KindUnsupportedResourceType ErrorKind = "UnsupportedResourceType"
	KindParseFailure            ErrorKind = "ParseFailure"
	KindExternalModelFailure    ErrorKind = "ExternalModelFailure"
	KindAssemblyFailure         ErrorKind = "AssemblyFailure"
	KindPersistenceFailure      ErrorKind = "PersistenceFailure"
	KindTimeout                 ErrorKind = "Timeout"
	KindConfiguration           ErrorKind = "Configuration"
)

// Sentinel errors, one per kind. An *Error matches its kind's sentinel with
// errors.Is.
var (
	ErrUnsupportedFormat       = errors.New("unsupported format")
	ErrUnsupportedResourceType = errors.New("unsupported resource type")
	ErrParseFailure            = errors.New("parse failure")
	ErrExternalModelFailure    = errors.New("external model failure")
	ErrAssemblyFailure         = errors.New("assembly failure")
	ErrPersistenceFailure      = errors.New("persistence failure")
	ErrTimeout                 = errors.New("timeout")
	ErrConfiguration           = errors.New("invalid configuration")
)

var sentinels = map[ErrorKind]error{
	KindUnsupportedFormat:       ErrUnsupportedFormat,
	KindUnsupportedResourceType: ErrUnsupportedResourceType,
	KindParseFailure:            ErrParseFailure,
	KindExternalModelFailure:    ErrExternalModelFailure,
	KindAssemblyFailure:         ErrAssemblyFailure,
	KindPersistenceFailure:      ErrPersistenceFailure,
	KindTimeout:                 ErrTimeout,
	KindConfiguration:           ErrConfiguration,
}

// Error is a classified pipeline error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
