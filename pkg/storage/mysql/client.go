// Package mysql provides a MySQL-backed memory store.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/memgate/memgate-go/pkg/storage"
)

// Client implements storage.Store using MySQL as the backend.
type Client struct {
	// db is the MySQL database connection pool.
	db *sql.DB

	// tableName is the name of the table storing memories.
	tableName string

	// settingsTable is the name of the table storing per-user settings.
	settingsTable string
}

// Config contains configuration for creating a MySQL memory store.
type Config struct {
	// Host is the database server hostname.
	Host string

	// Port is the database server port (default: 3306).
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// TableName is the name of the table to use (default: "memories").
	TableName string
}

// NewClient creates a new MySQL memory store.
//
// Parameters:
//   - cfg: Configuration containing connection parameters and table name
//
// Returns:
//   - *Client: The store instance
//   - error: Error if connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.TableName == "" {
		cfg.TableName = "memories"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
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
			user_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			content_hash VARCHAR(64) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_user_created (user_id, created_at DESC)
		) CHARACTER SET utf8mb4
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("mysql: failed to create table: %w", err)
	}

	settingsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id VARCHAR(255) PRIMARY KEY,
			private_mode BOOLEAN NOT NULL DEFAULT FALSE,
			memory_limit INT NOT NULL DEFAULT 0,
			memory_prefix VARCHAR(255) NOT NULL DEFAULT '',
			updated_at DATETIME(6) NOT NULL
		) CHARACTER SET utf8mb4
	`, c.settingsTable)

	if _, err := c.db.ExecContext(ctx, settingsQuery); err != nil {
		return fmt.Errorf("mysql: failed to create settings table: %w", err)
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
		return fmt.Errorf("mysql: failed to insert memory: %w", err)
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
		return nil, fmt.Errorf("mysql: failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		var m storage.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.ContentHash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("mysql: failed to scan memory: %w", err)
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: error iterating rows: %w", err)
	}
	return memories, nil
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
		return nil, fmt.Errorf("mysql: failed to get memory: %w", err)
	}
	return &m, nil
}

// Delete removes the memory with the given id if it belongs to userID.
func (c *Client) Delete(ctx context.Context, userID string, id int64) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", c.tableName)

	result, err := c.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mysql: failed to delete memory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteAll removes every memory belonging to userID.
func (c *Client) DeleteAll(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", c.tableName)

	result, err := c.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to delete memories: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: failed to get rows affected: %w", err)
	}
	return affected, nil
}

// Count returns the number of memories belonging to userID.
func (c *Client) Count(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ?", c.tableName)

	var count int64
	if err := c.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("mysql: failed to count memories: %w", err)
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
		return nil, fmt.Errorf("mysql: failed to get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings inserts or replaces the settings for their owner.
func (c *Client) SaveSettings(ctx context.Context, settings *storage.UserSettings) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, private_mode, memory_limit, memory_prefix, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			private_mode = VALUES(private_mode),
			memory_limit = VALUES(memory_limit),
			memory_prefix = VALUES(memory_prefix),
			updated_at = VALUES(updated_at)
	`, c.settingsTable)

	_, err := c.db.ExecContext(ctx, query,
		settings.UserID, settings.PrivateMode, settings.MemoryLimit, settings.MemoryPrefix, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("mysql: failed to save settings: %w", err)
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
