package flowplugin

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrItemNotFound is returned when no item exists under the requested id.
var ErrItemNotFound = errors.New("item not found")

// Item is something the user kept through a result's store action.
type Item struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store defines the interface for item storage
type Store interface {
	// Save stores a new item and returns it with its generated id
	Save(ctx context.Context, name string, data json.RawMessage) (*Item, error)

	// Get retrieves an item by id
	Get(ctx context.Context, id string) (*Item, error)

	// List returns all items, newest first
	List(ctx context.Context) ([]Item, error)

	// Delete removes an item by id
	Delete(ctx context.Context, id string) error

	Close() error
}
