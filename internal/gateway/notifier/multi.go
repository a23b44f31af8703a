package notifier

import (
	"context"
	"errors"
)

// Multi fans a message out to every available notifier.
type Multi []Notifier

func (m Multi) Available() bool {
	for _, n := range m {
		if n != nil && n.Available() {
			return true
		}
	}
	return false
}

func (m Multi) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if n == nil || !n.Available() {
			continue
		}
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
