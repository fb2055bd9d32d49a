package flowplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store
type InMemoryStore struct {
	items map[string]*Item
	mu    sync.RWMutex
	now   func() time.Time
}

// NewInMemoryStore creates a new instance of InMemoryStore
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items: make(map[string]*Item),
		now:   time.Now,
	}
}

func (s *InMemoryStore) Save(ctx context.Context, name string, data json.RawMessage) (*Item, error) {
	if name == "" {
		return nil, fmt.Errorf("item name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := &Item{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      append(json.RawMessage(nil), data...),
		CreatedAt: s.now().UTC(),
	}
	s.items[item.ID] = item

	cp := *item
	return &cp, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	cp := *item
	return &cp, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	delete(s.items, id)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
