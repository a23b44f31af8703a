package market

import "fmt"

// FetchError wraps a network or decode failure from a data provider.
type FetchError struct {
	Op         string
	Instrument string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Instrument == "" {
		return fmt.Sprintf("market %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("market %s %s: %v", e.Op, e.Instrument, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
