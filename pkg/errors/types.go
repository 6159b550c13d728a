// Package errors provides the structured error taxonomy for the session
// engine. Every failure mode carries a JSON-RPC error code, a category used
// by propagation policy (per-request vs. whole-session), and a severity.
package errors

import (
	"encoding/json"
	"fmt"
)

// Category classifies an error for propagation policy. Per-request
// categories (timeout, handler, correlation, cancelled) resolve only the
// affected request; channel categories (handshake, transport) terminate the
// session.
type Category string

const (
	CategoryCodec       Category = "codec"
	CategoryCorrelation Category = "correlation"
	CategoryHandshake   Category = "handshake"
	CategoryTimeout     Category = "timeout"
	CategoryCapability  Category = "capability"
	CategoryHandler     Category = "handler"
	CategoryTransport   Category = "transport"
	CategoryState       Category = "state"
	CategoryCancelled   Category = "cancelled"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// EngineError is the interface implemented by all session engine errors.
type EngineError interface {
	error

	// Code returns the JSON-RPC error code.
	Code() int

	// Message returns the human-readable error message.
	Message() string

	// Data returns structured error data for the wire error object.
	Data() interface{}

	// Category returns the classification used by propagation policy.
	Category() Category

	// Severity returns the severity level.
	Severity() Severity

	// Fatal reports whether the error terminates the whole session rather
	// than a single request.
	Fatal() bool

	// WithDetail returns a copy with an extra detail appended to the message.
	WithDetail(detail string) EngineError

	// WithData returns a copy carrying structured data.
	WithData(data interface{}) EngineError

	// Unwrap returns the underlying cause, if any.
	Unwrap() error
}

type baseError struct {
	code     int
	message  string
	detail   string
	data     interface{}
	category Category
	severity Severity
	cause    error
}

func (e *baseError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.message, e.detail)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Data() interface{}  { return e.data }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Unwrap() error      { return e.cause }

// Fatal reports whether the category terminates the session. Handshake and
// transport failures break the channel itself; everything else is local to
// one request.
func (e *baseError) Fatal() bool {
	return e.category == CategoryHandshake || e.category == CategoryTransport
}

func (e *baseError) WithDetail(detail string) EngineError {
	clone := *e
	if clone.detail != "" {
		clone.detail = fmt.Sprintf("%s; %s", clone.detail, detail)
	} else {
		clone.detail = detail
	}
	return &clone
}

func (e *baseError) WithData(data interface{}) EngineError {
	clone := *e
	clone.data = data
	return &clone
}

// MarshalJSON serializes the error for structured logging.
func (e *baseError) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"code":     e.code,
		"message":  e.Error(),
		"category": string(e.category),
		"severity": string(e.severity),
	}
	if e.data != nil {
		out["data"] = e.data
	}
	if e.cause != nil {
		out["cause"] = e.cause.Error()
	}
	return json.Marshal(out)
}

// New creates an EngineError with an explicit code; category and severity are
// looked up from the code registry.
func New(code int, message string) EngineError {
	return &baseError{
		code:     code,
		message:  message,
		category: CodeCategory(code),
		severity: CodeSeverity(code),
	}
}

// Newf creates an EngineError with a formatted message.
func Newf(code int, format string, args ...interface{}) EngineError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an EngineError carrying an underlying cause.
func Wrap(err error, code int, message string) EngineError {
	return &baseError{
		code:     code,
		message:  message,
		category: CodeCategory(code),
		severity: CodeSeverity(code),
		cause:    err,
	}
}

// AsEngineError extracts an EngineError from an error chain.
func AsEngineError(err error) (EngineError, bool) {
	if err == nil {
		return nil, false
	}
	for e := err; e != nil; e = unwrap(e) {
		if ee, ok := e.(EngineError); ok {
			return ee, true
		}
	}
	return nil, false
}

// IsCategory reports whether an error belongs to the given category.
func IsCategory(err error, category Category) bool {
	if ee, ok := AsEngineError(err); ok {
		return ee.Category() == category
	}
	return false
}

// IsCode reports whether an error carries the given JSON-RPC code.
func IsCode(err error, code int) bool {
	if ee, ok := AsEngineError(err); ok {
		return ee.Code() == code
	}
	return false
}

// IsFatal reports whether an error terminates the whole session.
func IsFatal(err error) bool {
	if ee, ok := AsEngineError(err); ok {
		return ee.Fatal()
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
