package schema

import (
	"sort"
	"sync"
)

// Registry holds the descriptor for every registered table. It is safe for
// concurrent use. Re-registering a table overwrites the previous descriptor;
// already-created tables are not retroactively altered.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Descriptor)}
}

// Register stores or overwrites the descriptor for its table.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[d.Table] = d
	return nil
}

// Lookup returns the descriptor registered for the table.
func (r *Registry) Lookup(table string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tables[table]
	return d, ok
}

// Tables returns every registered descriptor, ordered by table name so
// iteration (and the DDL synthesized from it) is deterministic.
func (r *Registry) Tables() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Descriptor, len(names))
	for i, name := range names {
		out[i] = r.tables[name]
	}
	return out
}

// OrderForCreation orders descriptors so every foreign-key target precedes
// its referrers. Cycles and self-references fall back to name order at the
// tail; SQLite tolerates forward references, the other backends let the
// migration error surface.
func OrderForCreation(descs []*Descriptor) []*Descriptor {
	created := make(map[string]bool, len(descs))
	out := make([]*Descriptor, 0, len(descs))
	pending := append([]*Descriptor(nil), descs...)
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, d := range pending {
			ready := true
			for i := range d.Columns {
				fk := d.Columns[i].ForeignKey
				if fk == nil || fk.ToTable == d.Table {
					continue
				}
				if !created[fk.ToTable] {
					ready = false
					break
				}
			}
			if ready {
				created[d.Table] = true
				out = append(out, d)
				progressed = true
			} else {
				rest = append(rest, d)
			}
		}
		pending = rest
		if !progressed {
			out = append(out, pending...)
			break
		}
	}
	return out
}

// Clear drops every registration. Used between test runs.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[string]*Descriptor)
}

// Len returns the number of registered tables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}
