package flowplugin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shaharia-lab/flowplugin/observability"
)

// SQLiteStore is an SQLite implementation of Store
type SQLiteStore struct {
	db     *sql.DB
	logger observability.Logger
}

// NewSQLiteStore opens (or creates) the database at databasePath.
func NewSQLiteStore(databasePath string, logger observability.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewSQLiteStoreFromDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreFromDB wraps an already opened database and makes sure the
// schema exists.
func NewSQLiteStoreFromDB(db *sql.DB, logger observability.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	store := &SQLiteStore{db: db, logger: logger}

	if err := store.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	createItemsTableSQL := `
    CREATE TABLE IF NOT EXISTS items (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        data TEXT,
        created_at DATETIME NOT NULL
    );`

	createItemsIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_items_created_at ON items (created_at);
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema init: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createItemsTableSQL); err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createItemsIndexSQL); err != nil {
		s.logger.WithErr(err).Warn("Failed to create items index")
	}

	return tx.Commit()
}

func (s *SQLiteStore) Save(ctx context.Context, name string, data json.RawMessage) (*Item, error) {
	if name == "" {
		return nil, fmt.Errorf("item name cannot be empty")
	}

	item := &Item{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	var dataArg interface{}
	if len(data) > 0 {
		dataArg = string(data)
	}

	insertSQL := `INSERT INTO items (id, name, data, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insertSQL, item.ID, item.Name, dataArg, item.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert item %q: %w", name, err)
	}

	s.logger.Debugf("Stored item %s (%s)", item.ID, item.Name)
	return item, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Item, error) {
	var (
		item Item
		data sql.NullString
	)

	querySQL := `SELECT id, name, data, created_at FROM items WHERE id = ?`
	err := s.db.QueryRowContext(ctx, querySQL, id).Scan(&item.ID, &item.Name, &data, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("failed to query item %s: %w", id, err)
	}
	if data.Valid {
		item.Data = json.RawMessage(data.String)
	}

	return &item, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Item, error) {
	querySQL := `SELECT id, name, data, created_at FROM items ORDER BY created_at DESC, id ASC`
	rows, err := s.db.QueryContext(ctx, querySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			item Item
			data sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Name, &data, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		if data.Valid {
			item.Data = json.RawMessage(data.String)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion of item %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
