// Package engine orchestrates one scan end to end: it validates credentials,
// resolves the region list, fans region work out through an adaptive pool,
// runs the scenario catalog against each region's inventory, and folds
// everything into one deduplicated result. Failures are contained at the
// smallest useful scope: a scenario panic costs one scenario, a collection
// failure costs one resource type, a dead region costs one region. Only a
// credential failure aborts the scan.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wastewatch/wastewatch/pkg/cloud"
	"github.com/wastewatch/wastewatch/pkg/finding"
	"github.com/wastewatch/wastewatch/pkg/pricing"
	"github.com/wastewatch/wastewatch/pkg/rules"
	"github.com/wastewatch/wastewatch/pkg/swarm"
	"github.com/wastewatch/wastewatch/pkg/telemetry"
)

const (
	// DefaultConcurrency is the initial number of region scans in flight.
	DefaultConcurrency = 8

	// MinConcurrency and MaxConcurrency bound the pool as throttle
	// feedback moves it.
	MinConcurrency = 1
	MaxConcurrency = 16

	// DefaultRegionTimeout caps a single region scan.
	DefaultRegionTimeout = 5 * time.Minute
)

// Policy post-processes the deduplicated findings of a scan. The CEL-backed
// implementation lives in pkg/policy; the engine only needs the contract.
type Policy interface {
	Apply(ctx context.Context, findings []finding.Finding) ([]finding.Finding, error)
}

// Engine runs scans against one provider account with one resolved rule set
// and one price catalog. Construct with New; the zero value is not usable.
type Engine struct {
	adapter cloud.Adapter
	rules   *rules.Set
	catalog *pricing.Catalog
	policy  Policy
	logger  *slog.Logger
	tracer  trace.Tracer
	pool    *swarm.Pool

	concurrency   int
	regionTimeout time.Duration
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine logs somewhere other than the default discard
// handler.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPolicy applies a post-scan policy to the deduplicated findings.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithConcurrency sets the initial region fan-out width. The pool still
// adapts within [MinConcurrency, MaxConcurrency].
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRegionTimeout overrides the per-region deadline.
func WithRegionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.regionTimeout = d
		}
	}
}

// WithClock pins the clock every age and lookback computation reads.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New assembles an engine. The adapter, rule set and catalog are required;
// everything else has defaults.
func New(adapter cloud.Adapter, set *rules.Set, catalog *pricing.Catalog, opts ...Option) *Engine {
	e := &Engine{
		adapter:       adapter,
		rules:         set,
		catalog:       catalog,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        telemetry.Tracer("wastewatch/engine"),
		concurrency:   DefaultConcurrency,
		regionTimeout: DefaultRegionTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = swarm.NewPool(e.concurrency, MinConcurrency, MaxConcurrency)
	return e
}
