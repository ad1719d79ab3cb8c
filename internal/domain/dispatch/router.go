package dispatch

import (
	"context"
	"fmt"

	"github.com/okian/rocketstat/internal/domain/identity"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
	"github.com/okian/rocketstat/pkg/metrics"
)

// Router offers inbound documents to the submitters of a registry.
type Router struct {
	registry *Registry
	logger   logger.Logger
}

// Option applies a configuration option to the Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l logger.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router over reg.
func NewRouter(reg *Registry, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		logger:   logger.Get().Named("dispatch"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the router dispatches to.
func (r *Router) Registry() *Registry { return r.registry }

// Broadcast submits the call's document to every registered submitter and
// returns how many accepted it. Zero is not an error.
func (r *Router) Broadcast(ctx context.Context, call model.InboundCall) int {
	doc := call.Document()
	targets := r.registry.List()

	accepted := 0
	for _, t := range targets {
		if t.Submit(ctx, doc) {
			accepted++
		}
	}
	metrics.RecordBroadcast(accepted)

	switch {
	case len(targets) == 0:
		r.logger.Warn(ctx, "no engines registered for broadcast")
	case accepted == 0:
		r.logger.Warn(ctx, "broadcast matched no engine",
			logger.Int("engines", len(targets)),
			logger.String("platform", identity.TokenPlatform(doc.IdentityToken())),
		)
	default:
		r.logger.Debug(ctx, "broadcast accepted",
			logger.Int("engines", len(targets)),
			logger.Int("accepted", accepted),
		)
	}
	return accepted
}

// Submit offers doc to the single submitter registered under id.
func (r *Router) Submit(ctx context.Context, id string, doc model.Document) (bool, error) {
	t, ok := r.registry.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	return t.Submit(ctx, doc), nil
}
