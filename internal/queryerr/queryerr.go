// Package queryerr defines the diagnostic codes attached to
// query-fatal errors (spec.md §7 kinds 1-5). Cell-level conditions
// (Invalid, Null, access-denied) are domain.CellValue values and never
// reach this package; only errors that abort the whole query do.
package queryerr

import "fmt"

// Code tags the class of a query-fatal error, mirroring the bracketed
// panic tags the Rust original used (e.g. "[850BHE]") translated into
// Go's explicit-error idiom instead of a process abort.
type Code string

const (
	CodeCacheMiss      Code = "CACHE_MISS"
	CodeInvalidGid     Code = "INVALID_GID"
	CodeTypeMismatch   Code = "TYPE_MISMATCH"
	CodeUnsupported    Code = "UNSUPPORTED"
	CodeTransport      Code = "TRANSPORT"
	CodeAccessRules    Code = "ACCESS_RULES"
	CodeNonConvergent  Code = "NON_CONVERGENT"
)

// Error wraps an underlying cause with a diagnostic code so the
// caller (the RPC front end) can surface a stable machine-readable
// code alongside the human-readable message.
type Error struct {
	Code Code
	Err  error
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the diagnostic code from err, if it (or something it
// wraps) is a *Error; otherwise returns "" and false.
func CodeOf(err error) (Code, bool) {
	var qe *Error
	if ok := asQueryErr(err, &qe); ok {
		return qe.Code, true
	}
	return "", false
}

func asQueryErr(err error, target **Error) bool {
	for err != nil {
		if qe, ok := err.(*Error); ok {
			*target = qe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
