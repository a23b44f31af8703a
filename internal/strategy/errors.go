package strategy

import "fmt"

// CompileError means a strategy document could not be turned into an
// evaluator. Callers treat it as "no evaluator", not as a crash.
type CompileError struct {
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile strategy: %s: %v", e.Reason, e.Err)
	}
	return "compile strategy: " + e.Reason
}

func (e *CompileError) Unwrap() error { return e.Err }

func compileErr(err error, format string, args ...any) *CompileError {
	return &CompileError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// RuntimeError is raised per evaluation when an evaluator fails, panics or
// returns a malformed series.
type RuntimeError struct {
	Strategy string
	Err      error
}

func (e *RuntimeError) Error() string {
	if e.Strategy == "" {
		return fmt.Sprintf("strategy runtime: %v", e.Err)
	}
	return fmt.Sprintf("strategy %s runtime: %v", e.Strategy, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
