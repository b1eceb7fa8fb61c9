// Package notify carries "response recorded" signals from whoever fulfills a
// request to the relay process. Signals only shorten the wait between polls;
// the store stays the source of truth.
package notify

import "context"

// Publisher announces that a request has a new response.
type Publisher interface {
	Publish(ctx context.Context, requestID int64) error
}

// Subscriber delivers request identifiers announced by a Publisher. The
// returned channel is closed when ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan int64, error)
}

// Nop is a change feed that never signals.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, int64) error { return nil }

// Subscribe returns a channel that closes with ctx.
func (Nop) Subscribe(ctx context.Context) (<-chan int64, error) {
	ch := make(chan int64)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
