// Package postgres provides a PostgreSQL-backed memory store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/memgate/memgate-go/pkg/storage"
)

// Client implements storage.Store using PostgreSQL as the backend.
type Client struct {
	// db is the PostgreSQL database connection pool.
	db *sql.DB

	// tableName is the name of the table storing memories.
	tableName string

	// settingsTable is the name of the table storing per-user settings.
	settingsTable string
}

// Config contains configuration for creating a PostgreSQL memory store.
type Config struct {
	// Host is the database server hostname.
	Host string

	// Port is the database server port (default: 5432).
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// TableName is the name of the table to use (default: "memories").
	TableName string

	// SSLMode is the SSL mode (default: "disable").
	SSLMode string
}

// NewClient creates a new PostgreSQL memory store.
//
// Parameters:
//   - cfg: Configuration containing connection parameters and table name
//
// Returns:
//   - *Client: The store instance
//   - error: Error if connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.TableName == "" {
		cfg.TableName = "memories"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: failed to create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user_created ON %s(user_id, created_at DESC)
	`, c.tableName, c.tableName)

	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("postgres: failed to create index: %w", err)
	}

	settingsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			private_mode BOOLEAN NOT NULL DEFAULT FALSE,
			memory_limit INTEGER NOT NULL DEFAULT 0,
			memory_prefix TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)
	`, c.settingsTable)

	if _, err := c.db.ExecContext(ctx, settingsQuery); err != nil {
		return fmt.Errorf("postgres: failed to create settings table: %w", err)
	}

	return nil
}

// Save inserts a memory record.
func (c *Client) Save(ctx context.Context, memory *storage.Memory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, content, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.tableName)

	_, err := c.db.ExecContext(ctx, query,
		memory.ID, memory.UserID, memory.Content, memory.ContentHash, memory.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert memory: %w", err)
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
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, c.tableName)

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		var m storage.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.ContentHash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory: %w", err)
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: error iterating rows: %w", err)
	}
	return memories, nil
}

// Get returns the memory with the given id if it belongs to userID.
func (c *Client) Get(ctx context.Context, userID string, id int64) (*storage.Memory, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, content, content_hash, created_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, c.tableName)

	var m storage.Memory
	err := c.db.QueryRowContext(ctx, query, id, userID).Scan(
		&m.ID, &m.UserID, &m.Content, &m.ContentHash, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}
	return &m, nil
}

// Delete removes the memory with the given id if it belongs to userID.
func (c *Client) Delete(ctx context.Context, userID string, id int64) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND user_id = $2", c.tableName)

	result, err := c.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to delete memory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteAll removes every memory belonging to userID.
func (c *Client) DeleteAll(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", c.tableName)

	result, err := c.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete memories: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return affected, nil
}

// Count returns the number of memories belonging to userID.
func (c *Client) Count(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = $1", c.tableName)

	var count int64
	if err := c.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: failed to count memories: %w", err)
	}
	return count, nil
}

// GetSettings returns the settings for userID, or the defaults when none have
// been stored.
func (c *Client) GetSettings(ctx context.Context, userID string) (*storage.UserSettings, error) {
	query := fmt.Sprintf(`
		SELECT user_id, private_mode, memory_limit, memory_prefix, updated_at
		FROM %s
		WHERE user_id = $1
	`, c.settingsTable)

	var s storage.UserSettings
	err := c.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.PrivateMode, &s.MemoryLimit, &s.MemoryPrefix, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return &storage.UserSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings inserts or replaces the settings for their owner.
func (c *Client) SaveSettings(ctx context.Context, settings *storage.UserSettings) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, private_mode, memory_limit, memory_prefix, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			private_mode = EXCLUDED.private_mode,
			memory_limit = EXCLUDED.memory_limit,
			memory_prefix = EXCLUDED.memory_prefix,
			updated_at = EXCLUDED.updated_at
	`, c.settingsTable)

	_, err := c.db.ExecContext(ctx, query,
		settings.UserID, settings.PrivateMode, settings.MemoryLimit, settings.MemoryPrefix, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to save settings: %w", err)
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
