package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sourcectl/internal/domain"
)

// MemoryStore is an in-memory implementation for quick start and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sources  map[string]*domain.Source // keyed by slug
	mappings []domain.PropertyMapping
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store seeded with mappings, or with
// DefaultPropertyMappings when none are given.
func NewMemoryStore(mappings ...domain.PropertyMapping) *MemoryStore {
	if len(mappings) == 0 {
		mappings = DefaultPropertyMappings()
	}
	return &MemoryStore{
		sources:  make(map[string]*domain.Source),
		mappings: append([]domain.PropertyMapping(nil), mappings...),
	}
}

func (m *MemoryStore) ListSources(ctx context.Context) ([]domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, *s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *MemoryStore) GetSource(ctx context.Context, slug string) (*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[slug]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", slug, ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) CreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	if err := ValidateSource(src); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sources[src.Slug]; exists {
		return nil, fmt.Errorf("source with slug %q already exists: %w", src.Slug, ErrConflict)
	}
	stored := src.Clone()
	stored.PK = uuid.NewString()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Type = nil
	m.sources[stored.Slug] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) UpdateSource(ctx context.Context, slug string, src *domain.Source) (*domain.Source, error) {
	if err := ValidateSource(src); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sources[slug]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", slug, ErrNotFound)
	}
	if src.Slug != slug {
		if _, taken := m.sources[src.Slug]; taken {
			return nil, fmt.Errorf("source with slug %q already exists: %w", src.Slug, ErrConflict)
		}
	}
	stored := src.Clone()
	stored.PK = cur.PK
	stored.CreatedAt = cur.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	stored.Type = nil
	delete(m.sources, slug)
	m.sources[stored.Slug] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) DeleteSource(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[slug]; !ok {
		return fmt.Errorf("source %q: %w", slug, ErrNotFound)
	}
	delete(m.sources, slug)
	return nil
}

func (m *MemoryStore) ListPropertyMappings(ctx context.Context, ordering string) ([]domain.PropertyMapping, error) {
	order, err := ParseMappingOrdering(ordering)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := append([]domain.PropertyMapping(nil), m.mappings...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return order.less(out[i], out[j]) })
	return out, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }
