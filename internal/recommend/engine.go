package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/metrics"
	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/profile"
)

// DefaultRebuildTimeout bounds one model build.
const DefaultRebuildTimeout = 2 * time.Minute

// HistorySource loads the order history of every user.
type HistorySource interface {
	LoadHistory(ctx context.Context) (*orders.History, error)
}

// CatalogSource loads the restaurant catalog.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (*catalog.Catalog, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for trending recency.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRebuildTimeout bounds each model build. Non-positive values keep the
// default.
func WithRebuildTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.rebuildTimeout = d
		}
	}
}

// WithFallbackCatalog sets the catalog served when no snapshot is usable.
func WithFallbackCatalog(c *catalog.Catalog) Option {
	return func(e *Engine) { e.fallback = c }
}

// Engine is the public entry point for recommendations. Reads always go to
// the latest published Snapshot; Rebuild builds a new one and swaps it in.
type Engine struct {
	cfg      Config
	history  HistorySource
	catalogs CatalogSource
	fallback *catalog.Catalog
	now      func() time.Time
	logger   *slog.Logger

	rebuildTimeout time.Duration

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	rebuilds   singleflight.Group
}

// New creates an Engine with no snapshot. Call Rebuild before serving.
func New(cfg Config, history HistorySource, catalogs CatalogSource, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recommend config: %w", err)
	}
	cfg.StatusWeights = maps.Clone(cfg.StatusWeights)
	e := &Engine{
		cfg:      cfg,
		history:  history,
		catalogs: catalogs,
		now:      time.Now,
		logger:   slog.Default(),

		rebuildTimeout: DefaultRebuildTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	if e.fallback == nil {
		e.fallback = catalog.New(catalog.DefaultRestaurants())
	}
	e.logger = e.logger.With("component", "recommend")
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Snapshot returns the snapshot currently served, or nil before the first
// successful Rebuild.
func (e *Engine) Snapshot() *Snapshot { return e.current.Load() }

// Rebuild reloads history and catalog, builds a new snapshot and publishes
// it. Concurrent calls share one build. On error the previous snapshot stays.
//
// The shared build does not inherit any caller's cancellation: a caller whose
// ctx ends gets ctx.Err() while the build runs on for the others, bounded by
// the rebuild timeout.
func (e *Engine) Rebuild(ctx context.Context) (*Snapshot, error) {
	ch := e.rebuilds.DoChan("rebuild", func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.rebuildTimeout)
		defer cancel()
		return e.rebuild(buildCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (e *Engine) rebuild(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	var (
		h   *orders.History
		cat *catalog.Catalog
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		h, err = e.history.LoadHistory(gCtx)
		if err != nil {
			return fmt.Errorf("loading order history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cat, err = e.catalogs.LoadCatalog(gCtx)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.ModelRebuilds.WithLabelValues("error").Inc()
		e.logger.Error("model rebuild failed", "error", err)
		return nil, err
	}

	gen := e.generation.Add(1)
	snap := NewSnapshot(e.cfg, h, cat, gen, e.now())
	e.current.Store(snap)

	metrics.ModelRebuilds.WithLabelValues("ok").Inc()
	metrics.ModelRebuildDuration.Observe(time.Since(start).Seconds())
	metrics.ModelGeneration.Set(float64(gen))
	metrics.ModelUsers.Set(float64(snap.Users()))
	e.logger.Info("model rebuilt",
		"generation", gen,
		"users", snap.Users(),
		"restaurants", len(snap.features.rows),
		"duration", time.Since(start),
	)
	return snap, nil
}

// Collaborative returns up to n restaurants liked by similar users.
func (e *Engine) Collaborative(user string, n int) []Record {
	return e.read("collaborative", func(s *Snapshot) []Record { return s.Collaborative(user, n) })
}

// ContentBased returns up to n untried restaurants matching the user's profile.
func (e *Engine) ContentBased(user string, n int) []Record {
	return e.read("content_based", func(s *Snapshot) []Record { return s.ContentBased(user, n) })
}

// Hybrid returns up to n restaurants from the blended lists.
func (e *Engine) Hybrid(user string, n int) []Record {
	return e.read("hybrid", func(s *Snapshot) []Record { return s.Hybrid(user, n) })
}

// Trending returns up to n restaurants ordered by recent popularity.
func (e *Engine) Trending(n int) []Record {
	return e.read("trending", func(s *Snapshot) []Record { return s.Trending(n, e.now()) })
}

// Profile returns the user's profile as of the current snapshot.
func (e *Engine) Profile(user string) profile.Profile {
	s := e.current.Load()
	if s == nil {
		return profile.Default()
	}
	return s.Profile(user)
}

// Personalized returns every list for user from a single snapshot. It never
// fails: without a usable snapshot the static fallback bundle is returned.
func (e *Engine) Personalized(user string) (out Personalized) {
	metrics.RecommendationRequests.WithLabelValues("personalized").Inc()
	s := e.current.Load()
	if s == nil {
		e.logger.Warn("no model snapshot, serving fallback recommendations", "user", user)
		return e.fallbackBundle()
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecommendationFailures.WithLabelValues("personalized").Inc()
			e.logger.Error("personalized recommendations failed, serving fallback",
				"user", user, "generation", s.Generation, "panic", fmt.Sprint(r))
			out = e.fallbackBundle()
		}
	}()
	return s.Personalized(user, e.now())
}

func (e *Engine) fallbackBundle() Personalized {
	metrics.RecommendationFallbacks.Inc()
	cat := e.fallback
	if s := e.current.Load(); s != nil && s.catalog.Len() > 0 {
		cat = s.catalog
	}
	static := func(n int, src Source) []Record {
		out := make([]Record, 0, n)
		for _, r := range cat.Top(n) {
			out = append(out, newRecord(r, 0, src))
		}
		return out
	}
	return Personalized{
		Hybrid:        static(e.cfg.Bundle.Hybrid, SourceHybrid),
		Collaborative: []Record{},
		ContentBased:  []Record{},
		Trending:      static(e.cfg.Bundle.Trending, SourceTrending),
		Fallback:      true,
	}
}

// read runs fn against the current snapshot, converting a missing snapshot
// or a panic into an empty list.
func (e *Engine) read(kind string, fn func(*Snapshot) []Record) (out []Record) {
	metrics.RecommendationRequests.WithLabelValues(kind).Inc()
	s := e.current.Load()
	if s == nil {
		return []Record{}
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecommendationFailures.WithLabelValues(kind).Inc()
			e.logger.Error("recommendation failed", "kind", kind, "generation", s.Generation, "panic", fmt.Sprint(r))
			out = []Record{}
		}
	}()
	return fn(s)
}

// StaticSource serves a fixed history and catalog.
type StaticSource struct {
	History *orders.History
	Catalog *catalog.Catalog
}

func (s StaticSource) LoadHistory(context.Context) (*orders.History, error) {
	if s.History == nil {
		return orders.NewHistory(), nil
	}
	return s.History, nil
}

func (s StaticSource) LoadCatalog(context.Context) (*catalog.Catalog, error) {
	if s.Catalog == nil {
		return catalog.New(nil), nil
	}
	return s.Catalog, nil
}
