package command_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgate/memgate-go/pkg/cache"
	"github.com/memgate/memgate-go/pkg/command"
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
)

// mockStore is an in-memory storage.Store with switchable failure modes.
type mockStore struct {
	memories []*storage.Memory
	settings map[string]*storage.UserSettings

	failDeleteAll bool
	panicOnCount  bool
}

func (m *mockStore) GetSettings(_ context.Context, userID string) (*storage.UserSettings, error) {
	if s, ok := m.settings[userID]; ok {
		copied := *s
		return &copied, nil
	}
	return &storage.UserSettings{UserID: userID}, nil
}

func (m *mockStore) SaveSettings(_ context.Context, settings *storage.UserSettings) error {
	if m.settings == nil {
		m.settings = make(map[string]*storage.UserSettings)
	}
	copied := *settings
	m.settings[settings.UserID] = &copied
	return nil
}

func (m *mockStore) Save(_ context.Context, memory *storage.Memory) error {
	m.memories = append(m.memories, memory)
	return nil
}

func (m *mockStore) ListRecent(_ context.Context, userID string, limit int) ([]*storage.Memory, error) {
	return m.owned(userID, limit), nil
}

func (m *mockStore) Scan(_ context.Context, userID string, limit int) ([]*storage.Memory, error) {
	return m.owned(userID, limit), nil
}

func (m *mockStore) owned(userID string, limit int) []*storage.Memory {
	var out []*storage.Memory
	for i := len(m.memories) - 1; i >= 0; i-- {
		if m.memories[i].UserID == userID {
			out = append(out, m.memories[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (m *mockStore) Get(_ context.Context, userID string, id int64) (*storage.Memory, error) {
	for _, mem := range m.memories {
		if mem.UserID == userID && mem.ID == id {
			return mem, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) Delete(_ context.Context, userID string, id int64) (bool, error) {
	for i, mem := range m.memories {
		if mem.UserID == userID && mem.ID == id {
			m.memories = append(m.memories[:i], m.memories[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) DeleteAll(_ context.Context, userID string) (int64, error) {
	if m.failDeleteAll {
		return 0, errors.New("store down")
	}
	var kept []*storage.Memory
	var removed int64
	for _, mem := range m.memories {
		if mem.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, mem)
	}
	m.memories = kept
	return removed, nil
}

func (m *mockStore) Count(_ context.Context, userID string) (int64, error) {
	if m.panicOnCount {
		panic("count exploded")
	}
	var count int64
	for _, mem := range m.memories {
		if mem.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) Close() error { return nil }

func seed(store *mockStore, userID string, contents ...string) {
	n := relevance.NewNormalizer()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range contents {
		store.memories = append(store.memories, &storage.Memory{
			ID:          int64(i + 1),
			UserID:      userID,
			Content:     content,
			ContentHash: n.ContentHash(content),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func newRouter(t *testing.T, store *mockStore, config command.RouterConfig) *command.Router {
	t.Helper()
	n := relevance.NewNormalizer()
	s := relevance.NewScorer(n, relevance.DefaultWeights())
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	planCache := cache.New(16, time.Hour)
	return command.NewRouter(store, store, n, s, node, planCache.Stats, nil, config)
}

func TestRouter_NotCommand(t *testing.T) {
	r := newRouter(t, &mockStore{}, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "tell me about coffee")
	assert.Equal(t, command.OutcomeNotCommand, result.Outcome)
	assert.False(t, result.Handled())
	assert.Empty(t, result.Response)
}

func TestRouter_UnknownCommandGetsHelp(t *testing.T) {
	r := newRouter(t, &mockStore{}, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_recall everything")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.True(t, result.Handled(), "unknown commands never reach the conversation path")
	assert.Contains(t, result.Response, "Unknown command")
	assert.Contains(t, result.Response, "/memory_help")
}

func TestRouter_Help(t *testing.T) {
	r := newRouter(t, &mockStore{}, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_help")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "/memory_add")
	assert.Contains(t, result.Response, "/clear_memories")
}

func TestRouter_Count(t *testing.T) {
	store := &mockStore{}
	seed(store, "u1", "Favorite coffee is dark roast", "Works at Initech")
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_count")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "2 memories")
}

func TestRouter_CountScopedToUser(t *testing.T) {
	store := &mockStore{}
	seed(store, "someone-else", "Their memory, not yours")
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_count")
	assert.Contains(t, result.Response, "no memories")
}

func TestRouter_AddAndRecent(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_add the wifi password is hunter2")
	require.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "Saved: the wifi password is hunter2")

	require.Len(t, store.memories, 1)
	saved := store.memories[0]
	assert.Equal(t, "u1", saved.UserID)
	assert.NotZero(t, saved.ID)
	assert.NotEmpty(t, saved.ContentHash)

	result = r.TryHandle(ctx, "u1", "/memory_recent")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "hunter2")
}

func TestRouter_AddWithoutTextShowsUsage(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_add")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "Usage:")
	assert.Empty(t, store.memories)
}

func TestRouter_ListPagination(t *testing.T) {
	store := &mockStore{}
	var contents []string
	for i := 0; i < 25; i++ {
		contents = append(contents, fmt.Sprintf("memory number %d", i))
	}
	seed(store, "u1", contents...)
	r := newRouter(t, store, command.RouterConfig{PageSize: 10})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memories")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "page 1 of 3, 25 total")

	result = r.TryHandle(ctx, "u1", "/memories 3")
	assert.Contains(t, result.Response, "page 3 of 3")

	result = r.TryHandle(ctx, "u1", "/memories 4")
	assert.Contains(t, result.Response, "out of range")

	result = r.TryHandle(ctx, "u1", "/memories abc")
	assert.Contains(t, result.Response, "Usage:")
}

func TestRouter_Search(t *testing.T) {
	store := &mockStore{}
	seed(store, "u1",
		"Favorite coffee is dark roast",
		"Hiking mountain trails every weekend",
	)
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_search favorite coffee dark roast")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "dark roast")
	assert.NotContains(t, result.Response, "Hiking")

	result = r.TryHandle(ctx, "u1", "/memory_search zeppelin")
	assert.Contains(t, result.Response, "No memories matched")
}

func TestRouter_Export(t *testing.T) {
	store := &mockStore{}
	seed(store, "u1", "Favorite coffee is dark roast")
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_export")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "Memory export")
	assert.Contains(t, result.Response, "dark roast")
}

func TestRouter_Clear(t *testing.T) {
	store := &mockStore{}
	seed(store, "u1", "one", "two")
	seed(store, "u2", "theirs")
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/clear_memories")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "Deleted 2 memories")
	require.Len(t, store.memories, 1, "other users' memories survive")
	assert.Equal(t, "u2", store.memories[0].UserID)
}

func TestRouter_HandlerErrorIsHandledWithError(t *testing.T) {
	store := &mockStore{failDeleteAll: true}
	seed(store, "u1", "one")
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/clear_memories")
	assert.Equal(t, command.OutcomeHandledWithError, result.Outcome)
	assert.True(t, result.Handled(), "a failed command is still consumed")
	assert.Contains(t, result.Response, "Command failed")
}

func TestRouter_HandlerPanicIsContained(t *testing.T) {
	store := &mockStore{panicOnCount: true}
	r := newRouter(t, store, command.RouterConfig{})

	result := r.TryHandle(context.Background(), "u1", "/memory_count")
	assert.Equal(t, command.OutcomeHandledWithError, result.Outcome)
	assert.Contains(t, result.Response, "Command failed")
}

func TestRouter_ConfigAndStats(t *testing.T) {
	store := &mockStore{}
	seed(store, "u1", "Favorite coffee is dark roast")
	limits := command.Limits{
		MaxMemoriesToInject: 5,
		MaxMemoriesToScan:   300,
		MaxInjectionChars:   4000,
		RelevanceThreshold:  0.05,
		SimilarityThreshold: 0.8,
		MinResponseLength:   10,
		MaxResponseLength:   2000,
		CacheTTLSeconds:     3600,
		CacheMaxSize:        128,
	}
	r := newRouter(t, store, command.RouterConfig{Limits: limits})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_config")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "relevance threshold")
	assert.Contains(t, result.Response, "0.05")

	result = r.TryHandle(ctx, "u1", "/memory_stats")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "stored memories: 1")
	assert.Contains(t, result.Response, "cache hits")
}

func TestRouter_PrivateModeToggle(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/private_mode")
	assert.Contains(t, result.Response, "Usage: /private_mode on|off")

	result = r.TryHandle(ctx, "u1", "/private_mode maybe")
	assert.Contains(t, result.Response, "Usage: /private_mode on|off")

	result = r.TryHandle(ctx, "u1", "/private_mode on")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "Private mode enabled")
	require.NotNil(t, store.settings["u1"])
	assert.True(t, store.settings["u1"].PrivateMode)

	result = r.TryHandle(ctx, "u1", "/private_mode OFF")
	assert.Contains(t, result.Response, "Private mode disabled")
	assert.False(t, store.settings["u1"].PrivateMode)
}

func TestRouter_LimitValidationAndPersistence(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_limit")
	assert.Contains(t, result.Response, "Usage: /memory_limit")

	result = r.TryHandle(ctx, "u1", "/memory_limit lots")
	assert.Contains(t, result.Response, "Usage: /memory_limit")

	result = r.TryHandle(ctx, "u1", "/memory_limit 501")
	assert.Contains(t, result.Response, "between 0 and 500")
	assert.Nil(t, store.settings["u1"], "a rejected value is never persisted")

	result = r.TryHandle(ctx, "u1", "/memory_limit 7")
	assert.Contains(t, result.Response, "Memory limit set to 7")
	assert.Equal(t, 7, store.settings["u1"].MemoryLimit)

	result = r.TryHandle(ctx, "u1", "/memory_limit 0")
	assert.Contains(t, result.Response, "engine default")
	assert.Zero(t, store.settings["u1"].MemoryLimit)
}

func TestRouter_PrefixSetAndReset(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_prefix")
	assert.Contains(t, result.Response, "Usage: /memory_prefix")

	result = r.TryHandle(ctx, "u1", "/memory_prefix Recuerdos del usuario:")
	assert.Contains(t, result.Response, "Memory prefix set to: Recuerdos del usuario:")
	assert.Equal(t, "Recuerdos del usuario:", store.settings["u1"].MemoryPrefix)

	long := strings.Repeat("x", 101)
	result = r.TryHandle(ctx, "u1", "/memory_prefix "+long)
	assert.Contains(t, result.Response, "cannot exceed 100 characters")
	assert.Equal(t, "Recuerdos del usuario:", store.settings["u1"].MemoryPrefix,
		"a rejected prefix leaves the stored one alone")

	result = r.TryHandle(ctx, "u1", "/memory_prefix default")
	assert.Contains(t, result.Response, "restored to the default")
	assert.Empty(t, store.settings["u1"].MemoryPrefix)
}

func TestRouter_SettingsChangeInvalidatesPlans(t *testing.T) {
	store := &mockStore{}
	n := relevance.NewNormalizer()
	s := relevance.NewScorer(n, relevance.DefaultWeights())
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var invalidated []string
	r := command.NewRouter(store, store, n, s, node, nil, func(userID string) {
		invalidated = append(invalidated, userID)
	}, command.RouterConfig{})
	ctx := context.Background()

	r.TryHandle(ctx, "u1", "/private_mode on")
	r.TryHandle(ctx, "u1", "/memory_limit 3")
	r.TryHandle(ctx, "u1", "/memory_limit 501")

	assert.Equal(t, []string{"u1", "u1"}, invalidated,
		"every persisted change drops cached plans, rejected values do not")
}

func TestRouter_ConfigShowsUserSettings(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_config")
	assert.Contains(t, result.Response, "private mode:  off")
	assert.Contains(t, result.Response, "memory limit:  engine default")
	assert.Contains(t, result.Response, "memory prefix: default")

	r.TryHandle(ctx, "u1", "/private_mode on")
	r.TryHandle(ctx, "u1", "/memory_limit 3")
	r.TryHandle(ctx, "u1", "/memory_prefix Notas:")

	result = r.TryHandle(ctx, "u1", "/memory_config")
	assert.Contains(t, result.Response, "private mode:  on")
	assert.Contains(t, result.Response, "memory limit:  3")
	assert.Contains(t, result.Response, "memory prefix: Notas:")
}

func TestRouter_Status(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{Limits: command.Limits{CacheTTLSeconds: 3600}})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_status")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "system:       active")
	assert.Contains(t, result.Response, "private mode: off")
	assert.Contains(t, result.Response, "TTL 3600s")

	r.TryHandle(ctx, "u1", "/private_mode on")
	result = r.TryHandle(ctx, "u1", "/memory_status")
	assert.Contains(t, result.Response, "private mode: on")
}

func TestRouter_CleanupRemovesDuplicates(t *testing.T) {
	store := &mockStore{}
	seed(store, "u1",
		"Favorite coffee is dark roast",
		"Works at Initech",
		"Favorite coffee is dark roast",
		"Favorite coffee is dark roast",
	)
	seed(store, "u2", "Favorite coffee is dark roast")
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_cleanup")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "Removed 2 duplicate memories")

	count, err := store.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "one copy of each distinct memory survives")

	count, err = store.Count(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "other owners are untouched")

	result = r.TryHandle(ctx, "u1", "/memory_cleanup")
	assert.Contains(t, result.Response, "No duplicate memories found")
}

func TestRouter_Backup(t *testing.T) {
	store := &mockStore{}
	r := newRouter(t, store, command.RouterConfig{})
	ctx := context.Background()

	result := r.TryHandle(ctx, "u1", "/memory_backup")
	assert.Contains(t, result.Response, "no memories")

	seed(store, "u1", "Favorite coffee is dark roast", "Works at Initech")
	result = r.TryHandle(ctx, "u1", "/memory_backup")
	assert.Equal(t, command.OutcomeHandled, result.Outcome)
	assert.Contains(t, result.Response, "memories: 2")
	assert.Contains(t, result.Response, "/memory_export")
}
