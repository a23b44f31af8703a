package notifier

import "context"

// Notifier delivers a rendered report to an outbound channel.
type Notifier interface {
	Available() bool
	Send(ctx context.Context, title, body string) error
}
