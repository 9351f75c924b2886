package vectordb

import (
	"errors"
	"fmt"
	"strings"
)

// Common vector store errors. Every adapter returns errors that match one of
// these sentinels with errors.Is, usually wrapped in an *OpError.
var (
	// ErrArityMismatch is returned when the parallel slices passed to Insert
	// have different lengths.
	ErrArityMismatch = errors.New("vectordb: arity mismatch")

	// ErrDimensionMismatch is returned when a vector's length differs from the
	// configured index dimension.
	ErrDimensionMismatch = errors.New("vectordb: dimension mismatch")

	// ErrNotFound is returned by targeted operations (Update) on a missing id.
	ErrNotFound = errors.New("vectordb: not found")

	// ErrNotImplemented is returned for operations the backend cannot serve.
	ErrNotImplemented = errors.New("vectordb: not implemented")

	// ErrRemoteFailure is returned when the backend is unreachable or answers
	// with a failure status.
	ErrRemoteFailure = errors.New("vectordb: remote failure")

	// ErrMalformedResponse is returned when a backend response cannot be
	// normalized into the vectordb data model.
	ErrMalformedResponse = errors.New("vectordb: malformed response")

	// ErrInvalidArgument is returned for caller input that is neither an arity
	// nor a dimension problem, such as an empty id or a non-positive limit.
	ErrInvalidArgument = errors.New("vectordb: invalid argument")
)

// IsArityMismatchError checks if the error is an arity mismatch.
func IsArityMismatchError(err error) bool {
	return errors.Is(err, ErrArityMismatch)
}

// IsDimensionMismatchError checks if the error is a dimension mismatch.
func IsDimensionMismatchError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}

// IsNotFoundError checks if the error is a "record does not exist" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotImplementedError checks if the error reports a capability gap.
func IsNotImplementedError(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsRemoteFailureError checks if the error is a network or backend failure.
func IsRemoteFailureError(err error) bool {
	return errors.Is(err, ErrRemoteFailure)
}

// IsMalformedResponseError checks if the error is an undecodable backend response.
func IsMalformedResponseError(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsInvalidArgumentError checks if the error is an invalid caller argument.
func IsInvalidArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// ArityError describes the lengths of the parallel slices passed to Insert.
type ArityError struct {
	Vectors  int
	IDs      int
	Payloads int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s: %d vectors, %d ids, %d payloads", ErrArityMismatch, e.Vectors, e.IDs, e.Payloads)
}

func (e *ArityError) Unwrap() error { return ErrArityMismatch }

// DimensionError describes a vector whose length differs from the index dimension.
// Index is the position of the offending vector in its batch, or -1 for a query.
type DimensionError struct {
	Expected int
	Actual   int
	Index    int
}

func (e *DimensionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: vector %d: expected %d, got %d", ErrDimensionMismatch, e.Index, e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// RemoteMessage is a single error entry reported by a backend.
type RemoteMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RemoteError carries the backend status and payload of a failed call.
// StatusCode is zero when the request never produced a response.
type RemoteError struct {
	StatusCode int
	Messages   []RemoteMessage
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(ErrRemoteFailure.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	for _, m := range e.Messages {
		fmt.Fprintf(&b, ": [%d] %s", m.Code, m.Message)
	}
	if len(e.Messages) == 0 && e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the transport error, if any.
func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemoteFailure}
	}
	return []error{ErrRemoteFailure, e.Err}
}

// OpError wraps an error with the backend and operation it came from.
// Subject names the record or batch, e.g. `id "a"` or "batch of 3".
type OpError struct {
	Backend string
	Op      string
	Subject string
	Err     error
}

func (e *OpError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s): %v", e.Backend, e.Op, e.Subject, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// WrapOp wraps err in an *OpError. It returns nil when err is nil.
func WrapOp(backend, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Backend: backend, Op: op, Subject: subject, Err: err}
}

// NotImplemented returns an *OpError wrapping ErrNotImplemented.
func NotImplemented(backend, op string) error {
	return &OpError{Backend: backend, Op: op, Err: ErrNotImplemented}
}

// Malformed returns an error wrapping ErrMalformedResponse with a description.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// IDSubject formats a record id for OpError.Subject.
func IDSubject(id string) string {
	return fmt.Sprintf("id %q", id)
}

// BatchSubject formats a batch size for OpError.Subject.
func BatchSubject(n int) string {
	return fmt.Sprintf("batch of %d", n)
}
