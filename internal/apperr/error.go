// Package apperr defines the error-kind vocabulary shared by every core
// subsystem (cache, lock, pool, pipeline). Errors carry an HTTP-mappable
// status code the way the request pipeline's formatting helper expects.
package apperr

import "fmt"

// Kind identifies one of the error kinds named in spec.md §7. CacheMiss is
// not really an error and is represented as its own sentinel instead.
type Kind int

const (
	KindNone Kind = iota
	KindConfig
	KindBackendTransient
	KindBackendFatal
	KindLockStale
	KindNotFound
	KindBadRequest
	KindUpstream
	KindPayloadTooLarge
	KindInternal
)

// Error is a single-slot, code-carrying error. It is what reqctx.Context's
// error slot stores.
type Error struct {
	Kind    Kind
	Code    int // HTTP status this error maps to
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, code int, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, code int, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, 404, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, 400, format, args...)
}

func BackendFatal(cause error, format string, args ...any) *Error {
	return Wrap(KindBackendFatal, 500, cause, format, args...)
}

func Upstream(cause error, format string, args ...any) *Error {
	return Wrap(KindUpstream, 502, cause, format, args...)
}

func PayloadTooLarge(format string, args ...any) *Error {
	return New(KindPayloadTooLarge, 413, format, args...)
}

func Internal(cause error, format string, args ...any) *Error {
	return Wrap(KindInternal, 500, cause, format, args...)
}

// Code returns the HTTP status code for err, defaulting to 500 for errors
// that aren't *Error.
func Code(err error) int {
	if err == nil {
		return 200
	}
	if ae, ok := err.(*Error); ok {
		return ae.Code
	}
	return 500
}
