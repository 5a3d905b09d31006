// Package storage defines the persistent memory store interface and its
// record type.
//
// All operations are scoped by owner: a store must never return, modify, or
// delete another owner's records, and every SQL implementation enforces the
// owner filter in the query itself rather than in the caller.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested memory does not exist or belongs to
// a different owner.
var ErrNotFound = errors.New("memory not found")

// UserSettings are one owner's preferences for how the memory layer behaves.
// A missing row reads back as the zero value, which means engine defaults.
type UserSettings struct {
	// UserID identifies the owner.
	UserID string

	// PrivateMode pauses memory injection and saving for the owner while
	// enabled. Commands keep working.
	PrivateMode bool

	// MemoryLimit caps how many memories are injected for the owner.
	// Zero uses the engine default.
	MemoryLimit int

	// MemoryPrefix replaces the default injection header. Empty uses the
	// default.
	MemoryPrefix string

	// UpdatedAt is when the settings were last written.
	UpdatedAt time.Time
}

// Memory is a single persisted fact owned by one user.
type Memory struct {
	// ID is the unique identifier of the memory, stable for the lifetime
	// of the record.
	ID int64

	// UserID identifies the owner. All store operations are scoped to it.
	UserID string

	// Content is the memory text, bounded at save time.
	Content string

	// ContentHash is the hash of the normalized content, computed at save
	// time and used for exact-duplicate detection.
	ContentHash string

	// CreatedAt is when the memory was created. Immutable.
	CreatedAt time.Time
}

// MemoryStore is the persistence interface consumed by the engine.
//
// Implementations must tolerate concurrent calls from multiple turns and
// must honor context cancellation on every method that touches I/O.
type MemoryStore interface {
	// Save inserts a memory. ID, ContentHash, and CreatedAt are set by the
	// caller before Save.
	Save(ctx context.Context, memory *Memory) error

	// ListRecent returns up to limit memories for userID ordered newest
	// first. Used for recency-mode injection.
	ListRecent(ctx context.Context, userID string, limit int) ([]*Memory, error)

	// Scan returns up to limit candidate memories for userID for relevance
	// scoring, newest first. The limit is a hard cap; implementations must
	// never return the full store when it is larger.
	Scan(ctx context.Context, userID string, limit int) ([]*Memory, error)

	// Get returns the memory with the given id if it belongs to userID,
	// or ErrNotFound.
	Get(ctx context.Context, userID string, id int64) (*Memory, error)

	// Delete removes the memory with the given id if it belongs to userID.
	// It reports whether a record was removed.
	Delete(ctx context.Context, userID string, id int64) (bool, error)

	// DeleteAll removes every memory belonging to userID and returns the
	// number removed.
	DeleteAll(ctx context.Context, userID string) (int64, error)

	// Count returns the number of memories belonging to userID.
	Count(ctx context.Context, userID string) (int64, error)

	// Close releases the store's resources.
	Close() error
}

// SettingsStore persists per-owner settings. Like memory operations, settings
// are strictly owner-scoped.
type SettingsStore interface {
	// GetSettings returns the owner's settings, or the zero-value defaults
	// when none have been stored.
	GetSettings(ctx context.Context, userID string) (*UserSettings, error)

	// SaveSettings inserts or replaces the owner's settings.
	SaveSettings(ctx context.Context, settings *UserSettings) error
}

// Store combines memory and settings persistence. Every SQL client implements
// both halves over the same database.
type Store interface {
	MemoryStore
	SettingsStore
}
