package gocbbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/memd"
)

type wrappedError struct {
	Message    string
	InnerError error
}

func (e wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.InnerError.Error())
}

func (e wrappedError) Unwrap() error {
	return e.InnerError
}

func wrapError(err error, message string) error {
	return wrappedError{
		Message:    message,
		InnerError: err,
	}
}

func wrapErrorf(err error, format string, v ...interface{}) error {
	return wrapError(err, fmt.Sprintf(format, v...))
}

var (
	// ErrInvalidArgument occurs when an operation is given malformed arguments, an
	// unrecognised operation kind, or options that do not apply to the operation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnableToBuildResult occurs when a native response was received successfully but
	// the result payload could not be built from it, for instance an undecodable value.
	ErrUnableToBuildResult = errors.New("unable to build result")

	// ErrDurabilityImpossible occurs when the legacy durability requirements can never be
	// satisfied by the bucket's replica configuration. It is gocbcore's own sentinel so a
	// local rejection matches the server's DurabilityImpossible status.
	ErrDurabilityImpossible = gocbcore.ErrDurabilityImpossible

	// ErrDurabilityTimeout occurs when legacy durability requirements were not observed
	// before the operation deadline.
	ErrDurabilityTimeout = errors.New("durability requirements were not met before the deadline")

	// ErrBridgeClosed occurs when an operation is issued against a closed Connection.
	ErrBridgeClosed = errors.New("connection is closed")
)

// ErrorClass separates failures reported by the server or network from failures that
// originate in this library.
type ErrorClass int

const (
	// ErrorClassNative indicates that gocbcore completed the operation with an error. Legacy
	// durability failures found while observing the mutation are reported in this class too.
	ErrorClassNative ErrorClass = iota

	// ErrorClassInvalidArgument indicates that the operation was rejected before it was
	// submitted.
	ErrorClassInvalidArgument

	// ErrorClassUnableToBuildResult indicates that the native operation succeeded but its
	// response could not be turned into a Result.
	ErrorClassUnableToBuildResult
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassNative:
		return "native"
	case ErrorClassInvalidArgument:
		return "invalid_argument"
	case ErrorClassUnableToBuildResult:
		return "unable_to_build_result"
	}
	return fmt.Sprintf("unknown (%d)", int(c))
}

// OperationError is the error context carried by a failed Outcome.
type OperationError struct {
	InnerError error           `json:"-"`
	Class      ErrorClass      `json:"class"`
	Category   string          `json:"category,omitempty"`
	Kind       OpKind          `json:"-"`
	Key        string          `json:"key,omitempty"`
	Bucket     string          `json:"bucket,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	Collection string          `json:"collection,omitempty"`
	StatusCode memd.StatusCode `json:"status_code,omitempty"`
	Message    string          `json:"message,omitempty"`
	File       string          `json:"file,omitempty"`
	Line       int             `json:"line,omitempty"`
	OpID       string          `json:"op_id,omitempty"`
}

// Error returns the string representation of this error.
func (e *OperationError) Error() string {
	inner := "<nil>"
	if e.InnerError != nil {
		inner = e.InnerError.Error()
	}

	extra := struct {
		OperationError
		Op string `json:"operation"`
	}{
		OperationError: *e,
		Op:             e.Kind.String(),
	}
	extra.Key = redactUserData(e.Key)
	if extra.Message == inner {
		extra.Message = ""
	}

	data, err := json.Marshal(extra)
	if err != nil {
		logErrorf("failed to marshal operation error context: %s", err)
		return inner
	}

	if e.Category == "" {
		return inner + " | " + string(data)
	}
	return e.Category + ": " + inner + " | " + string(data)
}

// Unwrap returns the underlying cause for this error.
func (e *OperationError) Unwrap() error {
	return e.InnerError
}

// newOperationError builds the error context for a failure. The caller's file and line
// are recorded so a rendered exception can point back at the failing component.
func newOperationError(class ErrorClass, desc *opDescriptor, kind OpKind, err error) *OperationError {
	return buildOperationError(2, class, desc, kind, err)
}

func buildOperationError(skip int, class ErrorClass, desc *opDescriptor, kind OpKind, err error) *OperationError {
	opErr := &OperationError{
		InnerError: err,
		Class:      class,
		Kind:       kind,
		Category:   kind.Category(),
		Message:    err.Error(),
	}

	if _, file, line, ok := runtime.Caller(skip); ok {
		opErr.File = filepath.Base(file)
		opErr.Line = line
	}

	if desc != nil {
		opErr.Key = desc.key
		opErr.Bucket = desc.target.Bucket
		opErr.Scope = desc.target.Scope
		opErr.Collection = desc.target.Collection
		opErr.OpID = desc.opID
	}

	var kvErr *gocbcore.KeyValueError
	if errors.As(err, &kvErr) {
		opErr.StatusCode = kvErr.StatusCode
		if kvErr.ErrorDescription != "" {
			opErr.Message = kvErr.ErrorDescription
		}
	}

	return opErr
}

func invalidArgumentError(desc *opDescriptor, kind OpKind, err error) *OperationError {
	if !errors.Is(err, ErrInvalidArgument) {
		err = wrapError(ErrInvalidArgument, err.Error())
	}
	return buildOperationError(2, ErrorClassInvalidArgument, desc, kind, err)
}
