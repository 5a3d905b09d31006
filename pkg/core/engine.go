package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"

	memcache "github.com/memgate/memgate-go/pkg/cache"
	"github.com/memgate/memgate-go/pkg/command"
	"github.com/memgate/memgate-go/pkg/gate"
	"github.com/memgate/memgate-go/pkg/planner"
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
	"github.com/memgate/memgate-go/pkg/storage/mysql"
	"github.com/memgate/memgate-go/pkg/storage/postgres"
	"github.com/memgate/memgate-go/pkg/storage/sqlite"
	"github.com/memgate/memgate-go/pkg/summarizer"
	openaisum "github.com/memgate/memgate-go/pkg/summarizer/openai"
)

// Engine is the per-turn memory orchestrator.
//
// It wires the planner, the save gate, the command router, and the store into
// two entry points that bracket a model call: PreTurn before the model runs,
// PostTurn after. The hosting chat service is the only caller; the engine is
// safe for concurrent turns across users.
//
// The memory layer must never break a conversation. Both entry points resolve
// every internal failure to a safe default: no injection, no save, commands
// reported as failed. Failures are only observable through debug logging.
//
// Example:
//
//	engine, err := core.New(core.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	pre := engine.PreTurn(ctx, "user-42", messages)
//	if pre.State.CommandHandled {
//	    return pre.CommandResponse
//	}
//	// ... call the model with pre.Injection prepended ...
//	engine.PostTurn(ctx, "user-42", pre.State, userText, assistantText)
type Engine struct {
	config     *Config
	store      storage.Store
	normalizer *relevance.Normalizer
	scorer     *relevance.Scorer
	planCache  *memcache.MemoryCache
	planner    *planner.InjectionPlanner
	saveGate   *gate.SaveGate
	router     *command.Router
	summarizer summarizer.Provider
	node       *snowflake.Node
	logger     *log.Logger
	closed     atomic.Bool
}

// New creates an Engine from the given configuration.
//
// A nil config uses DefaultConfig. The configuration is validated, the store
// is connected, and all pipeline components are constructed once; the cache
// in particular is created here and shared, never a package global.
//
// Returns the engine, or an error if the configuration is invalid or the
// store cannot be opened.
func New(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := newStore(config.Store)
	if err != nil {
		return nil, NewMemoryError("New", fmt.Errorf("%w: %v", ErrStorageOperation, err))
	}

	provider, err := newSummarizer(config.Summarizer)
	if err != nil {
		store.Close()
		return nil, NewMemoryError("New", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		store.Close()
		return nil, NewMemoryError("New", err)
	}

	normalizer := relevance.NewNormalizer()
	scorer := relevance.NewScorer(normalizer, config.Memory.Weights)
	planCache := memcache.New(config.Cache.MaxSize, time.Duration(config.Cache.TTLSeconds)*time.Second)

	casual := gate.NewCasualFilter(normalizer)
	meta := gate.NewMetaFilter(normalizer)
	dedup := gate.NewDeduplicator(normalizer, scorer, config.Memory.SimilarityThreshold)
	saveGate := gate.NewSaveGate(casual, meta, dedup, provider, gate.SaveGateConfig{
		MinLength:           config.Memory.MinResponseLength,
		MaxLength:           config.Memory.MaxResponseLength,
		SummarizeThreshold:  config.Memory.SummarizeThreshold,
		SimilarityThreshold: config.Memory.SimilarityThreshold,
	})

	injectionPlanner := planner.NewInjectionPlanner(store, normalizer, scorer, casual, planCache, planner.Config{
		MaxInject: config.Memory.MaxMemoriesToInject,
		MaxScan:   config.Memory.MaxMemoriesToScan,
		MaxChars:  config.Memory.MaxInjectionChars,
		Threshold: config.Memory.RelevanceThreshold,
	})

	router := command.NewRouter(store, store, normalizer, scorer, node, planCache.Stats, injectionPlanner.Forget, command.RouterConfig{
		Limits: command.Limits{
			MaxMemoriesToInject: config.Memory.MaxMemoriesToInject,
			MaxMemoriesToScan:   config.Memory.MaxMemoriesToScan,
			MaxInjectionChars:   config.Memory.MaxInjectionChars,
			RelevanceThreshold:  config.Memory.RelevanceThreshold,
			SimilarityThreshold: config.Memory.SimilarityThreshold,
			MinResponseLength:   config.Memory.MinResponseLength,
			MaxResponseLength:   config.Memory.MaxResponseLength,
			CacheTTLSeconds:     config.Cache.TTLSeconds,
			CacheMaxSize:        config.Cache.MaxSize,
		},
	})

	var logger *log.Logger
	if config.Debug {
		logger = log.New(os.Stderr, "memgate: ", log.LstdFlags)
	}

	return &Engine{
		config:     config,
		store:      store,
		normalizer: normalizer,
		scorer:     scorer,
		planCache:  planCache,
		planner:    injectionPlanner,
		saveGate:   saveGate,
		router:     router,
		summarizer: provider,
		node:       node,
		logger:     logger,
	}, nil
}

// NewFromEnv creates an Engine from environment variables.
//
// Equivalent to LoadConfigFromEnv followed by New.
func NewFromEnv() (*Engine, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(config)
}

// PreTurn runs before the model is called for a turn.
//
// messages is the conversation transcript including the user message that
// opens the turn. PreTurn decides three things:
//   - whether the input is a command, in which case CommandResponse holds
//     the reply and the model should not be called
//   - whether this is the conversation's first turn
//   - which memories, if any, to inject into the model context, honoring
//     the owner's settings (private mode, personal limit, custom prefix)
//
// The returned State must be handed back to PostTurn for this turn. PreTurn
// never fails: any internal fault resolves to an empty result for the turn.
func (e *Engine) PreTurn(ctx context.Context, userID string, messages []Message) (result PreTurnResult) {
	firstTurn := isFirstTurn(messages)
	result = PreTurnResult{State: TurnState{FirstTurn: firstTurn, InjectionMode: planner.ModeNone}}

	defer func() {
		if rec := recover(); rec != nil {
			e.debugf("PreTurn: recovered: %v", rec)
			result = PreTurnResult{State: TurnState{FirstTurn: firstTurn, InjectionMode: planner.ModeNone}}
		}
	}()

	if userID == "" {
		e.debugf("PreTurn: empty user id")
		return result
	}
	if e.closed.Load() {
		e.debugf("PreTurn: engine closed")
		return result
	}

	query := latestUserMessage(messages)

	routed := e.router.TryHandle(ctx, userID, query)
	if routed.Handled() {
		result.State.CommandHandled = true
		result.CommandResponse = routed.Response
		if routed.Outcome == command.OutcomeHandledWithError {
			e.debugf("PreTurn: command failed for user %s", userID)
		}
		return result
	}

	settings, err := e.store.GetSettings(ctx, userID)
	if err != nil {
		e.debugf("PreTurn: settings: %v", err)
		return result
	}
	if settings.PrivateMode {
		e.debugf("PreTurn: user %s in private mode, skipping injection", userID)
		return result
	}

	plan, err := e.planner.Plan(ctx, userID, query, firstTurn, *settings)
	if err != nil {
		e.debugf("PreTurn: plan: %v", err)
	}
	result.State.InjectionMode = plan.Mode
	result.Injection = plan.Injection
	result.Plan = plan
	return result
}

// PostTurn runs after the model responded, deciding whether the turn becomes
// a memory.
//
// state is the value PreTurn returned for this turn. Command turns are never
// saved, whatever the command's outcome was, and owners in private mode skip
// with gate.SkipPrivate. PostTurn never fails: a storage or pipeline fault
// resolves to not saving, reported as gate.SkipError.
func (e *Engine) PostTurn(ctx context.Context, userID string, state TurnState, userText, assistantText string) (result PostTurnResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.debugf("PostTurn: recovered: %v", rec)
			result = PostTurnResult{Reason: gate.SkipError}
		}
	}()

	if userID == "" {
		e.debugf("PostTurn: empty user id")
		return PostTurnResult{Reason: gate.SkipError}
	}
	if e.closed.Load() {
		e.debugf("PostTurn: engine closed")
		return PostTurnResult{Reason: gate.SkipError}
	}

	// Command suppression must hold even when fetching the dedup set
	// would fail, so resolve it before touching the store.
	var existing []*storage.Memory
	if !state.CommandHandled {
		settings, err := e.store.GetSettings(ctx, userID)
		if err != nil {
			e.debugf("PostTurn: settings: %v", err)
			return PostTurnResult{Reason: gate.SkipError}
		}
		if settings.PrivateMode {
			return PostTurnResult{Reason: gate.SkipPrivate}
		}

		existing, err = e.store.Scan(ctx, userID, e.config.Memory.MaxMemoriesToScan)
		if err != nil {
			e.debugf("PostTurn: scan: %v", err)
			return PostTurnResult{Reason: gate.SkipError}
		}
	}

	decision := e.saveGate.ShouldSave(ctx, userText, assistantText, state.CommandHandled, existing)
	if !decision.Save {
		return PostTurnResult{Reason: decision.Reason}
	}

	memory := &storage.Memory{
		ID:          e.node.Generate().Int64(),
		UserID:      userID,
		Content:     decision.Content,
		ContentHash: e.normalizer.ContentHash(decision.Content),
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.Save(ctx, memory); err != nil {
		e.debugf("PostTurn: save: %v", err)
		return PostTurnResult{Reason: gate.SkipError}
	}

	e.planner.Invalidate(userID)
	return PostTurnResult{Saved: true, Memory: memory}
}

// Store exposes the underlying memory store, for callers that need direct
// access (exports, admin tooling).
func (e *Engine) Store() storage.MemoryStore {
	return e.store
}

// CacheStats returns a snapshot of the injection plan cache counters.
func (e *Engine) CacheStats() memcache.Stats {
	return e.planCache.Stats()
}

// Close releases the engine's resources: the store connection and the
// summarizer client. After Close both entry points are inert: PreTurn yields
// an empty result and PostTurn skips with gate.SkipError. A second Close
// returns ErrEngineClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return NewMemoryError("Close", ErrEngineClosed)
	}

	var firstErr error
	if err := e.store.Close(); err != nil {
		firstErr = err
	}
	if err := e.summarizer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return NewMemoryError("Close", firstErr)
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// isFirstTurn reports whether the transcript is at its opening turn: at most
// one user message, the one that starts it.
func isFirstTurn(messages []Message) bool {
	userCount := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			userCount++
			if userCount > 1 {
				return false
			}
		}
	}
	return true
}

// latestUserMessage returns the content of the newest user message, which is
// the turn's query.
func latestUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func newStore(cfg StoreConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
			SSLMode:   cfg.SSLMode,
		})
	case "mysql":
		return mysql.NewClient(&mysql.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
		})
	default:
		return sqlite.NewClient(&sqlite.Config{
			DBPath:    cfg.Path,
			TableName: cfg.TableName,
		})
	}
}

func newSummarizer(cfg SummarizerConfig) (summarizer.Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return summarizer.Passthrough{}, nil
	case "openai":
		return openaisum.NewClient(&openaisum.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, ErrInvalidConfig
	}
}
