package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// eventFilter is implemented by publishers that only take some event types.
type eventFilter interface {
	Accepts(typ string) bool
}

// Fanout dispatches every event to each publisher subscribed to its type. A nil Fanout
// publishes nothing.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a dispatcher over pubs, skipping nil entries.
func NewFanout(pubs []Publisher) *Fanout {
	f := &Fanout{}
	for _, p := range pubs {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Publish returns how many publishers accepted and delivered evt. Delivery errors are joined;
// one failing sink does not stop the others.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil {
		return 0, nil
	}

	var errs []error
	delivered := 0
	for _, p := range f.publishers {
		if filter, ok := p.(eventFilter); ok && !filter.Accepts(evt.Type) {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher[%s] %s: %w", p.Type(), p.ID(), evt.Type, err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Close releases publishers that hold connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher[%s]: %w", p.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Size returns the number of active publishers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}
