package balance

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ScoreStore persists the final scores of every generation of a run.
type ScoreStore interface {
	Init(ctx context.Context) error
	SaveGeneration(ctx context.Context, runID string, generation int, scores []float64) error
	LoadHistory(ctx context.Context, runID string) ([][]float64, error)
	Runs(ctx context.Context) ([]string, error)
	Close() error
}

var errStoreNotInitialized = errors.New("store is not initialized")

// MemoryStore is an in-process ScoreStore.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	history     map[string]map[int][]float64
}

// NewMemoryStore creates an empty MemoryStore. Call Init before use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.history = make(map[string]map[int][]float64)
	return nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, runID string, generation int, scores []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errStoreNotInitialized
	}
	run, ok := s.history[runID]
	if !ok {
		run = make(map[int][]float64)
		s.history[runID] = run
	}
	run[generation] = append([]float64(nil), scores...)
	return nil
}

func (s *MemoryStore) LoadHistory(_ context.Context, runID string) ([][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errStoreNotInitialized
	}
	run := s.history[runID]
	gens := make([]int, 0, len(run))
	for g := range run {
		gens = append(gens, g)
	}
	sort.Ints(gens)

	out := make([][]float64, 0, len(gens))
	for _, g := range gens {
		out = append(out, append([]float64(nil), run[g]...))
	}
	return out, nil
}

func (s *MemoryStore) Runs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errStoreNotInitialized
	}
	runs := make([]string, 0, len(s.history))
	for id := range s.history {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *MemoryStore) Close() error { return nil }
