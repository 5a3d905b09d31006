package command

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/memgate/memgate-go/pkg/cache"
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
)

// Outcome classifies what the router did with a piece of input.
type Outcome string

const (
	// OutcomeNotCommand means the input was not command-shaped and the
	// caller should treat it as ordinary conversation.
	OutcomeNotCommand Outcome = "not_command"

	// OutcomeHandled means the input was a command and executed cleanly.
	// The Response is the command's output.
	OutcomeHandled Outcome = "handled"

	// OutcomeHandledWithError means the input was a command but execution
	// failed. The Response is a diagnostic for the user. The turn still
	// counts as command-handled for persistence purposes.
	OutcomeHandledWithError Outcome = "handled_with_error"
)

// Result is what the router produced for one input.
type Result struct {
	// Outcome classifies the routing decision.
	Outcome Outcome

	// Response is the text to show the user. Empty for OutcomeNotCommand.
	Response string
}

// Handled reports whether the input was consumed as a command, successfully
// or not.
func (r Result) Handled() bool {
	return r.Outcome != OutcomeNotCommand
}

// Limits is the subset of engine configuration that commands display.
type Limits struct {
	MaxMemoriesToInject int
	MaxMemoriesToScan   int
	MaxInjectionChars   int
	RelevanceThreshold  float64
	SimilarityThreshold float64
	MinResponseLength   int
	MaxResponseLength   int
	CacheTTLSeconds     int
	CacheMaxSize        int
}

// RouterConfig tunes command output.
type RouterConfig struct {
	// PageSize is the number of memories per page for /memories.
	// Defaults to 10.
	PageSize int

	// MaxRecent is the cap on /memory_recent [n]. Defaults to 20.
	MaxRecent int

	// MaxSearchResults caps /memory_search output. Defaults to 10.
	MaxSearchResults int

	// Limits are the engine settings shown by /memory_config and
	// /memory_stats.
	Limits Limits
}

type handlerFunc func(ctx context.Context, userID string, cmd Command) (string, error)

// Router dispatches parsed commands to their handlers.
//
// The routing contract has exactly three outcomes. Input that is not
// command-shaped is OutcomeNotCommand. Command-shaped input is always
// consumed: unknown commands get the help text, handler failures become
// OutcomeHandledWithError. A command never falls back to conversation.
type Router struct {
	store      storage.MemoryStore
	settings   storage.SettingsStore
	normalizer *relevance.Normalizer
	scorer     *relevance.Scorer
	node       *snowflake.Node
	cacheStats func() cache.Stats
	invalidate func(userID string)
	config     RouterConfig
	handlers   map[Kind]handlerFunc
}

// NewRouter creates a Router over the given store.
//
// Parameters:
//   - store: Memory store commands operate on
//   - settings: Per-user settings store, usually the same client
//   - normalizer: Normalizer used to hash explicitly added memories
//   - scorer: Scorer used by /memory_search ranking
//   - node: Snowflake node for IDs of explicitly added memories
//   - cacheStats: Injection cache statistics accessor, may be nil
//   - invalidate: Called after a settings change so cached injection plans
//     for the owner are dropped, may be nil
//   - config: Output tuning and the limits to display
func NewRouter(
	store storage.MemoryStore,
	settings storage.SettingsStore,
	normalizer *relevance.Normalizer,
	scorer *relevance.Scorer,
	node *snowflake.Node,
	cacheStats func() cache.Stats,
	invalidate func(userID string),
	config RouterConfig,
) *Router {
	if config.PageSize <= 0 {
		config.PageSize = 10
	}
	if config.MaxRecent <= 0 {
		config.MaxRecent = 20
	}
	if config.MaxSearchResults <= 0 {
		config.MaxSearchResults = 10
	}

	r := &Router{
		store:      store,
		settings:   settings,
		normalizer: normalizer,
		scorer:     scorer,
		node:       node,
		cacheStats: cacheStats,
		invalidate: invalidate,
		config:     config,
	}
	r.handlers = map[Kind]handlerFunc{
		KindList:        r.handleList,
		KindSearch:      r.handleSearch,
		KindRecent:      r.handleRecent,
		KindCount:       r.handleCount,
		KindExport:      r.handleExport,
		KindAdd:         r.handleAdd,
		KindClear:       r.handleClear,
		KindConfig:      r.handleConfig,
		KindPrivateMode: r.handlePrivateMode,
		KindLimit:       r.handleLimit,
		KindPrefix:      r.handlePrefix,
		KindStats:       r.handleStats,
		KindStatus:      r.handleStatus,
		KindCleanup:     r.handleCleanup,
		KindBackup:      r.handleBackup,
		KindHelp:        r.handleHelp,
	}
	return r
}

// TryHandle routes input for one user.
//
// Returns OutcomeNotCommand for non-command input. For command-shaped input
// it always returns OutcomeHandled or OutcomeHandledWithError, never
// OutcomeNotCommand: once input looks like a command it must not reach the
// conversation path. A panic inside a handler is contained and reported as
// OutcomeHandledWithError.
func (r *Router) TryHandle(ctx context.Context, userID, input string) (result Result) {
	cmd, ok := Parse(input)
	if !ok {
		return Result{Outcome: OutcomeNotCommand}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = Result{
				Outcome:  OutcomeHandledWithError,
				Response: fmt.Sprintf("Command failed: internal error (%v)", rec),
			}
		}
	}()

	if cmd.Kind == KindUnknown {
		return Result{
			Outcome:  OutcomeHandled,
			Response: "Unknown command: " + cmd.Raw + "\n\n" + helpText(),
		}
	}

	response, err := r.handlers[cmd.Kind](ctx, userID, cmd)
	if err != nil {
		return Result{
			Outcome:  OutcomeHandledWithError,
			Response: fmt.Sprintf("Command failed: %v", err),
		}
	}
	return Result{Outcome: OutcomeHandled, Response: response}
}
