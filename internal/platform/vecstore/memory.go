package vecstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
)

type memoryEntry struct {
	id     string
	values []float32
}

// memoryStore is the default in-process Store. Entries keep insertion order
// per namespace so equal-score ties resolve deterministically.
type memoryStore struct {
	log *logger.Logger
	dim int

	mu         sync.RWMutex
	namespaces map[string][]memoryEntry
	index      map[string]map[string]int // namespace -> id -> slot
}

func NewMemoryStore(log *logger.Logger, dim int) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	return &memoryStore{
		log:        log.With("service", "MemoryVectorStore"),
		dim:        dim,
		namespaces: map[string][]memoryEntry{},
		index:      map[string]map[string]int{},
	}, nil
}

func (s *memoryStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector id is required")
		}
		if len(v.Values) != s.dim {
			return &DimensionError{ID: v.ID, Want: s.dim, Got: len(v.Values)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.index[namespace]
	if slots == nil {
		slots = map[string]int{}
		s.index[namespace] = slots
	}
	for _, v := range vectors {
		values := make([]float32, len(v.Values))
		copy(values, v.Values)
		if slot, ok := slots[v.ID]; ok {
			s.namespaces[namespace][slot].values = values
			continue
		}
		slots[v.ID] = len(s.namespaces[namespace])
		s.namespaces[namespace] = append(s.namespaces[namespace], memoryEntry{id: v.ID, values: values})
	}
	return nil
}

func (s *memoryStore) TopKSimilar(ctx context.Context, namespace string, q []float32, k int, threshold float64, onlyIDs []string) ([]Match, error) {
	if len(q) != s.dim {
		return nil, &DimensionError{ID: "query", Want: s.dim, Got: len(q)}
	}
	if k <= 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	candidates := s.candidates(namespace, onlyIDs)
	matches := make([]Match, 0, len(candidates))
	for _, e := range candidates {
		score := CosineSimilarity(q, e.values)
		if score >= threshold {
			matches = append(matches, Match{ID: e.id, Score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *memoryStore) NearestByDistance(ctx context.Context, namespace string, q []float32, k int, onlyIDs []string) ([]Match, error) {
	if len(q) != s.dim {
		return nil, &DimensionError{ID: "query", Want: s.dim, Got: len(q)}
	}
	if k <= 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	candidates := s.candidates(namespace, onlyIDs)
	matches := make([]Match, 0, len(candidates))
	for _, e := range candidates {
		matches = append(matches, Match{ID: e.id, Score: EuclideanDistance(q, e.values)})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score < matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *memoryStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.namespaces[namespace]
	kept := entries[:0]
	for _, e := range entries {
		if !drop[e.id] {
			kept = append(kept, e)
		}
	}
	s.namespaces[namespace] = kept
	slots := map[string]int{}
	for i, e := range kept {
		slots[e.id] = i
	}
	s.index[namespace] = slots
	return nil
}

// candidates must be called with the read lock held.
func (s *memoryStore) candidates(namespace string, onlyIDs []string) []memoryEntry {
	entries := s.namespaces[namespace]
	if onlyIDs == nil {
		return entries
	}
	allow := make(map[string]bool, len(onlyIDs))
	for _, id := range onlyIDs {
		allow[id] = true
	}
	out := make([]memoryEntry, 0, len(onlyIDs))
	for _, e := range entries {
		if allow[e.id] {
			out = append(out, e)
		}
	}
	return out
}
