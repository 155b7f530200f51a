package rdf

import (
	"sort"
	"sync"

	"github.com/provchain/provchain-core/pverr"
)

// MemoryStore is the in-process reference QuadStore implementation. It
// exercises the QuadStore contract for this module's own tests;
// production deployments supply their own backend.
//
// Concurrency: one writer at a time, many concurrent readers, via a single
// sync.RWMutex.
type MemoryStore struct {
	mu	sync.RWMutex
	all	[]Quad
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertQuads(quads []Quad) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = append(m.all, quads...)
	return nil
}

// RemoveGraph deletes every quad belonging to graphIRI. It backs the
// rollback path of a failed writer session:
// a graph partially written before an error must be dropped so the chain is
// left unchanged.
func (m *MemoryStore) RemoveGraph(graphIRI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.all[:0:0]
	for _, q := range m.all {
		if q.Graph != graphIRI {
			kept = append(kept, q)
		}
	}
	m.all = kept
	return nil
}

func (m *MemoryStore) QuadsFor(p Pattern) ([]Quad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Quad
	for _, q := range m.all {
		if p.Graph != "" && q.Graph != p.Graph {
			continue
		}
		if p.Subject != nil && !termsEqual(*p.Subject, q.Subject) {
			continue
		}
		if p.Predicate != nil && !termsEqual(*p.Predicate, q.Predicate) {
			continue
		}
		if p.Object != nil && !termsEqual(*p.Object, q.Object) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *MemoryStore) quadsInGraphLocked(graphIRI string) []Quad {
	var out []Quad
	for _, q := range m.all {
		if q.Graph == graphIRI {
			out = append(out, q)
		}
	}
	return out
}

// QuadsInGraph returns every quad belonging to a named graph, in insertion
// order. It is the entry point the canonicalizer uses.
func (m *MemoryStore) QuadsInGraph(graphIRI string) []Quad {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quadsInGraphLocked(graphIRI)
}

func (m *MemoryStore) ExportGraph(graphIRI string) (string, error) {
	quads := m.QuadsInGraph(graphIRI)
	lines := make([]string, 0, len(quads))
	for _, q := range quads {
		lines = append(lines, SerializeTriple(q))
	}
	sort.Strings(lines)
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.all)
}

func (m *MemoryStore) Flush() error { return nil }
func (m *MemoryStore) Optimize() error { return nil }

// IntegrityCheck performs the bare structural check available to an
// in-memory store: every quad must reference a non-empty graph IRI.
func (m *MemoryStore) IntegrityCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.all {
		if q.Graph == "" {
			return pverr.Wrap(pverr.Store, "integrity check", pverr.ErrInvalidState)
		}
	}
	return nil
}
