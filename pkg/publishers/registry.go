package publishers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
)

// Publisher sends coupon events to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error)

// Registry maps publisher types to builders. It is not safe for concurrent Register calls.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry returns a registry seeded with builders.
func NewRegistry(builders map[string]Builder) *Registry {
	r := &Registry{builders: make(map[string]Builder, len(builders))}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// DefaultRegistry knows every sink this package implements.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Builder{
		TypeHTTP:   newHTTPPublisher,
		TypeSQS:    newSQSPublisher,
		TypeSNS:    newSNSPublisher,
		TypePubSub: newPubSubPublisher,
	})
}

// Register associates a builder with a publisher type; blank types and nil builders are ignored.
func (r *Registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ != "" && builder != nil {
		r.builders[typ] = builder
	}
}

// PublisherFor builds the publisher for cfg. A config that lists events gets a publisher that
// only accepts those event types.
func (r *Registry) PublisherFor(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	builder, ok := r.builders[strings.ToLower(cfg.Type)]
	if !ok {
		return nil, fmt.Errorf("publisher %q: no builder registered for type %q", cfg.ID, cfg.Type)
	}
	pub, err := builder(ctx, cfg, logger.Ensure(log))
	if err != nil {
		return nil, fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}
	if len(cfg.Events) == 0 {
		return pub, nil
	}
	return subscribed{Publisher: pub, events: cfg}, nil
}

// BuildAll instantiates publishers for cfgs. On failure the publishers built so far are closed.
func BuildAll(ctx context.Context, reg *Registry, cfgs []PublisherConfig, log logger.Logger) ([]Publisher, error) {
	if reg == nil || len(cfgs) == 0 {
		return nil, nil
	}

	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := reg.PublisherFor(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(pubs).Close()
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// subscribed restricts a publisher to the event types listed in its config.
type subscribed struct {
	Publisher
	events PublisherConfig
}

func (s subscribed) Accepts(typ string) bool { return s.events.Accepts(typ) }

func (s subscribed) Close() error {
	if c, ok := s.Publisher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
