package execution

import (
	"sync"

	"github.com/google/uuid"
)

// Shared is state that crosses dataset tasks within one run. Every member guards itself,
// so datasets processed in parallel may use it concurrently.
type Shared struct {
	// RunID identifies the run; cooked tables carry it as their load batch.
	RunID    string
	Accounts *AccountRegistry
	IDs      *IDInventory
}

// NewShared returns empty run-scoped state under a fresh run id.
func NewShared() *Shared {
	return &Shared{RunID: uuid.NewString(), Accounts: NewAccountRegistry(), IDs: NewIDInventory()}
}

// AccountRegistry is the run-wide set of generated account identifiers.
type AccountRegistry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewAccountRegistry returns an empty registry.
func NewAccountRegistry() *AccountRegistry {
	return &AccountRegistry{ids: make(map[string]struct{})}
}

// Claim adds id and reports whether it was not yet taken.
func (r *AccountRegistry) Claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.ids[id]; taken {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Contains reports whether id was claimed.
func (r *AccountRegistry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of claimed identifiers.
func (r *AccountRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// IDSource is the set of non-zero values one cooked file holds for an ID field.
type IDSource struct {
	Source string
	Values []float64
}

// IDScanner reads the ID fields of every cooked file in a directory.
type IDScanner func(dir string) (map[string][]IDSource, error)

// IDInventory memoizes ID values found in previously written outputs. Each directory is
// scanned once per run; what a dataset sees therefore depends on which datasets finished
// before its first lookup.
type IDInventory struct {
	mu      sync.Mutex
	scanned map[string]bool
	fields  map[string][]IDSource
	cache   map[string][]float64
}

// NewIDInventory returns an empty inventory.
func NewIDInventory() *IDInventory {
	return &IDInventory{
		scanned: make(map[string]bool),
		fields:  make(map[string][]IDSource),
		cache:   make(map[string][]float64),
	}
}

// Lookup returns the known values of field from sources other than exclude, scanning dir
// with scan on first use. Results are memoized per field. It returns nil when nothing is known.
func (inv *IDInventory) Lookup(dir, field, exclude string, scan IDScanner) ([]float64, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if values, ok := inv.cache[field]; ok {
		return values, nil
	}
	var scanErr error
	if !inv.scanned[dir] && scan != nil {
		found, err := scan(dir)
		if err != nil {
			scanErr = err
		} else {
			for f, sources := range found {
				inv.fields[f] = append(inv.fields[f], sources...)
			}
			inv.scanned[dir] = true
		}
	}

	var values []float64
	for _, src := range inv.fields[field] {
		if src.Source == exclude {
			continue
		}
		values = append(values, src.Values...)
	}
	if len(values) == 0 {
		return nil, scanErr
	}
	inv.cache[field] = values
	return values, scanErr
}

// Fields returns the number of ID fields known to the inventory.
func (inv *IDInventory) Fields() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.fields)
}
