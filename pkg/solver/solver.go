// Package solver holds the per-session configuration of the symbolic backend
// and a query cache shared by the searchers of that session.
package solver

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/boundcheck/pkg/cache"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

// Backend selects the value representation used by the solver.
type Backend string

// Supported backends.
const (
	BackendBDD      Backend = "bdd"
	BackendSAT      Backend = "sat"
	BackendExplicit Backend = "explicit"
)

// Backends lists the supported backends.
var Backends = []Backend{BackendBDD, BackendSAT, BackendExplicit}

// ErrUnknownBackend is returned by Reset for an unsupported selector.
var ErrUnknownBackend = outcome.Sentinel(outcome.ConfigurationError, "unknown solver backend")

// Stats are the solver counters reported at the end of a session.
type Stats struct {
	Queries    int
	CacheHits  int
	Evictions  int64
	Resets     int
	Generation uint64
}

// Context is the solver state of one session. Reset must be called before
// the first query of every session.
type Context struct {
	mu         sync.Mutex
	backend    Backend
	generation uint64
	maxEntries int
	cache      *cache.LRU[string, bool]
	queries    int
	hits       int
	resets     int
}

// New creates a Context that has not been reset yet.
func New() *Context {
	return &Context{}
}

// NewWithCapacity is New with a query cache holding at most maxEntries
// answers per session.
func NewWithCapacity(maxEntries int) *Context {
	return &Context{maxEntries: maxEntries}
}

// Reset discards every cached result and switches to backend.
func (c *Context) Reset(backend string) error {
	b := Backend(backend)
	if !slices.Contains(Backends, b) {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.backend = b
	c.generation++
	c.cache = cache.NewLRU[string, bool](c.maxEntries)
	c.queries = 0
	c.hits = 0
	c.resets++

	return nil
}

// Backend returns the active backend, empty before the first Reset.
func (c *Context) Backend() Backend {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.backend
}

// Generation identifies the session the cache belongs to.
func (c *Context) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

// Query returns the cached answer for key or evaluates and caches it.
// Before the first Reset nothing is cached.
func (c *Context) Query(key string, eval func() bool) bool {
	c.mu.Lock()
	c.queries++
	lru := c.cache

	if lru != nil {
		if v, ok := lru.Get(key); ok {
			c.hits++
			c.mu.Unlock()

			return v
		}
	}
	c.mu.Unlock()

	v := eval()

	if lru != nil {
		lru.Put(key, v)
	}

	return v
}

// Stats returns a snapshot of the counters.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var evictions int64
	if c.cache != nil {
		evictions = c.cache.Stats().Evictions
	}

	return Stats{
		Queries:    c.queries,
		CacheHits:  c.hits,
		Evictions:  evictions,
		Resets:     c.resets,
		Generation: c.generation,
	}
}
