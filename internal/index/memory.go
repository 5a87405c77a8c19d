package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is a brute-force cosine-similarity Index kept entirely in
// memory. It backs unit tests and small single-process deployments where
// running Qdrant is not worth it.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record // documentID -> chunkID -> record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[string]Record)}
}

// Upsert stores records keyed by chunk ID, overwriting on collision.
func (m *MemoryIndex) Upsert(ctx context.Context, documentID string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[documentID]
	if !ok {
		ns = make(map[string]Record, len(records))
		m.namespaces[documentID] = ns
	}
	for _, rec := range records {
		ns[rec.ChunkID] = rec
	}
	return nil
}

// Search scores every record in the namespace by cosine similarity and
// returns the top limit, ties broken by ascending chunk index. An unknown
// document ID yields an empty result.
func (m *MemoryIndex) Search(ctx context.Context, documentID string, vector []float32, limit int, filter *Filter) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[documentID]
	scored := make([]Scored, 0, len(ns))
	for _, rec := range ns {
		if !matches(rec, filter) {
			continue
		}
		scored = append(scored, Scored{Record: rec, Score: cosine(vector, rec.Vector)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.ChunkIndex < scored[j].Record.ChunkIndex
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Delete drops the whole namespace. Unknown namespaces are a no-op.
func (m *MemoryIndex) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, documentID)
	return nil
}

// Count returns the number of records stored for a document.
func (m *MemoryIndex) Count(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[documentID])
}

func matches(rec Record, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if filter.Type != "" && rec.Type != filter.Type {
		return false
	}
	if filter.Section != "" && !strings.EqualFold(rec.Section, filter.Section) {
		return false
	}
	return true
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
