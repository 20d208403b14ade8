// Package execution carries the per-dataset execution context through every strategy call.
package execution

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// Context is the explicit per-dataset context handed to strategies. It is used by one
// dataset task at a time; only Shared is touched concurrently.
type Context struct {
	Dataset  string
	Provider *config.Provider
	Shared   *Shared
	Memo     *Memo
	Log      logger.DatasetLogger
	Rand     *rand.Rand
	// Now is the clock used for date clamping and lineage.
	Now func() time.Time
	// PendingFields are target columns the schema mapping found no source for.
	PendingFields []string

	validationPass int
}

// Option configures a Context.
type Option func(*Context)

// WithSeed makes random choices reproducible.
func WithSeed(seed int64) Option {
	return func(c *Context) { c.Rand = rand.New(rand.NewSource(seed)) }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.Now = now }
}

// WithShared attaches run-scoped shared state.
func WithShared(s *Shared) Option {
	return func(c *Context) { c.Shared = s }
}

// New creates the context of one dataset.
func New(dataset string, provider *config.Provider, opts ...Option) *Context {
	c := &Context{
		Dataset:  dataset,
		Provider: provider,
		Memo:     NewMemo(),
		Log:      logger.ForDataset(dataset),
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Shared == nil {
		c.Shared = NewShared()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Engine returns the typed engine parameters, or defaults without a provider.
func (c *Context) Engine() config.EngineParameters {
	if c.Provider == nil {
		return config.EngineParameters{}
	}
	return c.Provider.Engine()
}

// Schema returns the target schema of the dataset.
func (c *Context) Schema() config.Schema {
	if c.Provider == nil {
		return config.Schema{}
	}
	return c.Provider.SchemaFor(c.Dataset)
}

// Is reports whether the dataset name contains kind, ignoring case.
func (c *Context) Is(kind string) bool {
	return strings.Contains(strings.ToLower(c.Dataset), strings.ToLower(kind))
}

// NextValidationPass increments and returns the 1-based validation pass of the dataset.
func (c *Context) NextValidationPass() int {
	c.validationPass++
	return c.validationPass
}

// ValidationPass returns the current validation pass, zero before the first one.
func (c *Context) ValidationPass() int { return c.validationPass }

// ResetValidationPass restarts pass numbering, as done on every new load of the dataset.
func (c *Context) ResetValidationPass() { c.validationPass = 0 }

// Memo is a run-scoped memoization table keyed by cheap fingerprints.
type Memo struct {
	mu      sync.Mutex
	entries map[string]interface{}
}

// NewMemo returns an empty table.
func NewMemo() *Memo {
	return &Memo{entries: make(map[string]interface{})}
}

// Remember returns the value stored under key, computing and storing it with fn on a miss.
func Remember[T any](m *Memo, key string, fn func() T) T {
	m.mu.Lock()
	if v, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return v.(T)
	}
	m.mu.Unlock()

	v := fn()
	m.mu.Lock()
	m.entries[key] = v
	m.mu.Unlock()
	return v
}

// Len returns the number of memoized entries.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Fingerprint hashes a namespace and a sorted copy of names into a memo key.
func Fingerprint(namespace string, names ...string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	h := fnv.New64a()
	h.Write([]byte(namespace))
	for _, n := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(n))
	}
	return namespace + ":" + strconv.FormatUint(h.Sum64(), 16)
}
