package types

import (
	"errors"
	"fmt"
)

type ErrKind int

const (
	ErrTransient ErrKind = iota // RPC/HTTP timeout, non-2xx
	ErrMalformed                // unexpected quote/log shape
	ErrSimulation               // eth_call against the exact payload failed
	ErrSubmission               // signing/broadcast failed, no gas spent
)

func (k ErrKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrMalformed:
		return "malformed"
	case ErrSimulation:
		return "simulation"
	case ErrSubmission:
		return "submission"
	}
	return "unknown"
}

// Error tags a failure with the kind the scan loop dispatches on.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func WrapErr(kind ErrKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func kindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsTransient(err error) bool  { k, ok := kindOf(err); return ok && k == ErrTransient }
func IsMalformed(err error) bool  { k, ok := kindOf(err); return ok && k == ErrMalformed }
func IsSimulation(err error) bool { k, ok := kindOf(err); return ok && k == ErrSimulation }
func IsSubmission(err error) bool { k, ok := kindOf(err); return ok && k == ErrSubmission }
