// Package sqlite provides a SQLite-backed memory store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-host deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memgate/memgate-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing memories.
	tableName string

	// settingsTable is the name of the table storing per-user settings.
	settingsTable string
}

// Config contains configuration for creating a SQLite memory store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use (default: "memories").
	TableName string
}

// NewClient creates a new SQLite memory store.
//
// Parameters:
//   - cfg: Configuration containing database path and table name
//
// Returns:
//   - *Client: The store instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	if cfg.TableName == "" {
		cfg.TableName = "memories"
	}

	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	client := &Client{
		db:            db,
		tableName:     cfg.TableName,
		settingsTable: cfg.TableName + "_settings",
	}

	if err := client.initTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initTable initializes the database table structure.
func (c *Client) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: failed to create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user_created ON %s(user_id, created_at DESC)
	`, c.tableName, c.tableName)

	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("sqlite: failed to create index: %w", err)
	}

	settingsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			private_mode INTEGER NOT NULL DEFAULT 0,
			memory_limit INTEGER NOT NULL DEFAULT 0,
			memory_prefix TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)
	`, c.settingsTable)

	if _, err := c.db.ExecContext(ctx, settingsQuery); err != nil {
		return fmt.Errorf("sqlite: failed to create settings table: %w", err)
	}

	return nil
}

// Save inserts a memory record.
func (c *Client) Save(ctx context.Context, memory *storage.Memory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, content, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.tableName)

	_, err := c.db.ExecContext(ctx, query,
		memory.ID, memory.UserID, memory.Content, memory.ContentHash, memory.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}
	return nil
}

// ListRecent returns up to limit memories for userID, newest first.
func (c *Client) ListRecent(ctx context.Context, userID string, limit int) ([]*storage.Memory, error) {
	return c.queryRecent(ctx, userID, limit)
}

// Scan returns up to limit scoring candidates for userID, newest first.
func (c *Client) Scan(ctx context.Context, userID string, limit int) ([]*storage.Memory, error) {
	return c.queryRecent(ctx, userID, limit)
}

func (c *Client) queryRecent(ctx context.Context, userID string, limit int) ([]*storage.Memory, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, content, content_hash, created_at
		FROM %s
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, c.tableName)

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

// Get returns the memory with the given id if it belongs to userID.
func (c *Client) Get(ctx context.Context, userID string, id int64) (*storage.Memory, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, content, content_hash, created_at
		FROM %s
		WHERE id = ? AND user_id = ?
	`, c.tableName)

	var m storage.Memory
	err := c.db.QueryRowContext(ctx, query, id, userID).Scan(
		&m.ID, &m.UserID, &m.Content, &m.ContentHash, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return &m, nil
}

// Delete removes the memory with the given id if it belongs to userID.
func (c *Client) Delete(ctx context.Context, userID string, id int64) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", c.tableName)

	result, err := c.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteAll removes every memory belonging to userID.
func (c *Client) DeleteAll(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", c.tableName)

	result, err := c.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete memories: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return affected, nil
}

// Count returns the number of memories belonging to userID.
func (c *Client) Count(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ?", c.tableName)

	var count int64
	if err := c.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}
	return count, nil
}

// GetSettings returns the settings for userID, or the defaults when none have
// been stored.
func (c *Client) GetSettings(ctx context.Context, userID string) (*storage.UserSettings, error) {
	query := fmt.Sprintf(`
		SELECT user_id, private_mode, memory_limit, memory_prefix, updated_at
		FROM %s
		WHERE user_id = ?
	`, c.settingsTable)

	var s storage.UserSettings
	err := c.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.PrivateMode, &s.MemoryLimit, &s.MemoryPrefix, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return &storage.UserSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings inserts or replaces the settings for their owner.
func (c *Client) SaveSettings(ctx context.Context, settings *storage.UserSettings) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, private_mode, memory_limit, memory_prefix, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			private_mode = excluded.private_mode,
			memory_limit = excluded.memory_limit,
			memory_prefix = excluded.memory_prefix,
			updated_at = excluded.updated_at
	`, c.settingsTable)

	_, err := c.db.ExecContext(ctx, query,
		settings.UserID, settings.PrivateMode, settings.MemoryLimit, settings.MemoryPrefix, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save settings: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// scanRows converts a result set into memory records.
func scanRows(rows *sql.Rows) ([]*storage.Memory, error) {
	var memories []*storage.Memory
	for rows.Next() {
		var m storage.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.ContentHash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating rows: %w", err)
	}
	return memories, nil
}
