package strategystore

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCode   = errors.New("strategy code is not a JSON document")
	ErrInvalidStatus = errors.New("status must be active or inactive")
)

// PersistenceError wraps any failure to read or write the strategy database.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("strategy store %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("strategy store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, ID: id, Err: err}
}
