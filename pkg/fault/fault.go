// Package fault defines the error taxonomy shared across the assessment core.
//
// Every failure surfaced to a caller belongs to exactly one kind. Schema faults
// mean an authored artifact is malformed and must block publication. Data faults
// mean submitted values are unusable for a judgment. Conflict faults are
// retryable concurrent-write collisions. State faults are transition attempts
// the workflow forbids. NotFound is what it says.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault.
type Kind string

const (
	KindSchema   Kind = "schema"
	KindData     Kind = "data"
	KindConflict Kind = "conflict"
	KindState    Kind = "state"
	KindNotFound Kind = "not_found"
)

// Error is a classified fault. Ref optionally names the offending entity
// (indicator code, field id, assessment id) so operators can act on logs
// without a debugger.
type Error struct {
	Kind Kind
	Msg  string
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	s := string(e.Kind) + ": " + e.Msg
	if e.Ref != "" {
		s += " (" + e.Ref + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// WithRef returns a copy of e carrying the entity reference.
func (e *Error) WithRef(ref string) *Error {
	cp := *e
	cp.Ref = ref
	return &cp
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Schemaf(format string, args ...any) *Error   { return newf(KindSchema, format, args...) }
func Dataf(format string, args ...any) *Error     { return newf(KindData, format, args...) }
func Conflictf(format string, args ...any) *Error { return newf(KindConflict, format, args...) }
func Statef(format string, args ...any) *Error    { return newf(KindState, format, args...) }
func NotFoundf(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// KindOf extracts the fault kind from err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsSchema(err error) bool   { return is(err, KindSchema) }
func IsData(err error) bool     { return is(err, KindData) }
func IsConflict(err error) bool { return is(err, KindConflict) }
func IsState(err error) bool    { return is(err, KindState) }
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsBusiness reports whether err is a classified fault. Business faults are
// deterministic rejections; retrying them cannot succeed. Anything outside the
// taxonomy (connection resets, timeouts, driver errors) is treated as
// transient by batch machinery.
func IsBusiness(err error) bool {
	_, ok := KindOf(err)
	return ok
}
