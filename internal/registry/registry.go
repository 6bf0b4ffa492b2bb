// Package registry maps collection names to shared, lock-protected
// collections.
//
// A Registry is passed explicitly to whatever needs lookups; there is no
// process-wide instance.
package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/atlas/config"
	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/logging"
)

// Spec names a collection and where to build it from.
type Spec struct {
	Name           string
	Source         string
	DatetimeFormat string
}

func (s Spec) key() string {
	return s.Name + "\x00" + s.Source + "\x00" + s.DatetimeFormat
}

// =============================================================================
// Handle
// =============================================================================

// Handle shares one collection between readers. Re-registering a name
// swaps the collection behind the existing handle.
type Handle struct {
	mu sync.RWMutex
	c  *collection.Collection
}

// View runs fn with the collection under the read lock. Any number of
// View calls may run at once.
func (h *Handle) View(fn func(c *collection.Collection) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.c)
}

// Update runs fn under the write lock and installs the collection it
// returns. On error the current collection is kept.
func (h *Handle) Update(fn func(c *collection.Collection) (*collection.Collection, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := fn(h.c)
	if err != nil {
		return err
	}
	if next == nil {
		return errors.NewConfiguration("update produced no collection")
	}
	h.c = next
	return nil
}

func (h *Handle) swap(c *collection.Collection) {
	h.mu.Lock()
	h.c = c
	h.mu.Unlock()
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds named collections.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	group singleflight.Group

	buildOpts   []collection.Option
	maxParallel int
	metrics     *Metrics
	log         *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCollectionOptions sets the options passed to every build.
func WithCollectionOptions(opts ...collection.Option) Option {
	return func(r *Registry) { r.buildOpts = append(r.buildOpts, opts...) }
}

// WithMaxParallel bounds how many builds LoadAll runs at once.
func WithMaxParallel(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxParallel = n
		}
	}
}

// WithMetrics records builds and registrations in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the registry logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		handles:     make(map[string]*Handle),
		maxParallel: config.DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Component("registry")
	}
	return r
}

// Add builds the collection described by spec and registers it under
// spec.Name, replacing any collection already registered there. Concurrent
// calls with an identical spec share one build.
func (r *Registry) Add(spec Spec) (*Handle, error) {
	if spec.Name == "" {
		return nil, errors.NewConfiguration("collection name is empty")
	}

	v, err, shared := r.group.Do(spec.key(), func() (interface{}, error) {
		return r.build(spec)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.log.Debug("build shared", zap.String("collection", spec.Name))
	}
	return v.(*Handle), nil
}

func (r *Registry) build(spec Spec) (*Handle, error) {
	start := time.Now()
	c, err := collection.Build(spec.Name, spec.Source, spec.DatetimeFormat, r.buildOpts...)
	r.metrics.observeBuild(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return r.register(c), nil
}

// Register adds an already built collection under its name.
func (r *Registry) Register(c *collection.Collection) *Handle {
	return r.register(c)
}

func (r *Registry) register(c *collection.Collection) *Handle {
	r.mu.Lock()
	h, ok := r.handles[c.Name()]
	if !ok {
		h = &Handle{c: c}
		r.handles[c.Name()] = h
	}
	n := len(r.handles)
	r.mu.Unlock()

	if ok {
		h.swap(c)
		r.log.Info("collection replaced", zap.String("collection", c.Name()), zap.String("build_id", c.BuildID()))
	} else {
		r.log.Info("collection registered", zap.String("collection", c.Name()), zap.String("build_id", c.BuildID()))
	}

	r.metrics.setCollection(c)
	r.metrics.setCount(n)
	return h
}

// Get returns the handle registered under name.
func (r *Registry) Get(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[name]
	if !ok {
		return nil, errors.NewNotFound("collection", name)
	}
	return h, nil
}

// Remove unregisters name. Holders of its handle keep their collection.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	if _, ok := r.handles[name]; !ok {
		r.mu.Unlock()
		return errors.NewNotFound("collection", name)
	}
	delete(r.handles, name)
	n := len(r.handles)
	r.mu.Unlock()

	r.metrics.removeCollection(name)
	r.metrics.setCount(n)
	r.log.Info("collection removed", zap.String("collection", name))
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of registered collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// LoadAll builds and registers every spec, running up to the configured
// number of builds at once. It returns the first error; builds not yet
// started when it occurs are skipped.
func (r *Registry) LoadAll(ctx context.Context, specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if _, dup := seen[spec.Name]; dup {
			return errors.NewConfiguration("collection %q listed twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)

	start := time.Now()
	for _, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := r.Add(spec); err != nil {
				return errors.Wrapf(err, "collection %s", spec.Name)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	r.log.Info("collections loaded",
		zap.Int("count", len(specs)),
		zap.Duration("duration", time.Since(start)))
	return nil
}
