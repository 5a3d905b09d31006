// Package planner selects which memories to inject into a turn and renders
// them as a bounded context block.
package planner

import (
	"context"
	"sort"
	"strings"

	"github.com/memgate/memgate-go/pkg/cache"
	"github.com/memgate/memgate-go/pkg/gate"
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
)

// Mode identifies how a plan's memories were selected.
type Mode string

const (
	// ModeNone means nothing was injected.
	ModeNone Mode = "none"

	// ModeRecency means the newest memories were injected without scoring.
	// Used on the first turn of a conversation, where there is no topical
	// context to score against yet.
	ModeRecency Mode = "recency"

	// ModeRelevance means memories were scored against the query and the
	// best matches injected.
	ModeRelevance Mode = "relevance"
)

// ScoredMemory pairs a memory with its relevance score. Recency-mode entries
// carry a zero score.
type ScoredMemory struct {
	Memory *storage.Memory
	Score  float64
}

// Plan is the outcome of memory selection for one turn.
type Plan struct {
	// Mode is how the memories were selected.
	Mode Mode

	// Memories are the selected memories in injection order.
	Memories []ScoredMemory

	// Injection is the rendered context block, empty when nothing is
	// injected.
	Injection string

	// FromCache is true when the plan was served from the plan cache
	// without touching the store.
	FromCache bool
}

// Config bounds planning work and output.
type Config struct {
	// MaxInject is the maximum number of memories in a plan. Defaults to 5.
	MaxInject int

	// MaxScan is the hard cap on memories fetched for scoring. Defaults
	// to 300.
	MaxScan int

	// MaxChars is the rendered block's character budget, in runes.
	// Defaults to 4000.
	MaxChars int

	// Threshold is the minimum relevance score for injection. Defaults
	// to 0.05.
	Threshold float64
}

const (
	defaultMaxInject = 5
	defaultMaxScan   = 300
	defaultMaxChars  = 4000
	defaultThreshold = 0.05

	injectionHeader = "Relevant information from previous conversations:"
)

// InjectionPlanner decides which memories accompany a turn.
//
// Selection runs in one of two modes. On the first turn of a conversation the
// newest memories are injected as-is, since there is no topical context to
// score against yet. On later turns candidates are scored against the user's
// message and only sufficiently relevant ones make the plan. Casual input
// short-circuits both modes. Either way the output is capped in count and in
// rendered size, and results are cached per (owner, query) so retries within
// the TTL do not rescan the store. Per-owner settings can tighten the count
// cap and replace the rendered header.
type InjectionPlanner struct {
	store      storage.MemoryStore
	normalizer *relevance.Normalizer
	scorer     *relevance.Scorer
	casual     *gate.CasualFilter
	planCache  *cache.MemoryCache
	config     Config
}

// NewInjectionPlanner creates a planner.
//
// Parameters:
//   - store: Memory store to plan from
//   - normalizer: Normalizer shared with the scorer
//   - scorer: Relevance scorer
//   - casual: Filter that exempts greetings from scoring
//   - planCache: Plan cache. May be nil, which disables caching.
//   - config: Planning bounds; zero values fall back to defaults
func NewInjectionPlanner(
	store storage.MemoryStore,
	normalizer *relevance.Normalizer,
	scorer *relevance.Scorer,
	casual *gate.CasualFilter,
	planCache *cache.MemoryCache,
	config Config,
) *InjectionPlanner {
	if config.MaxInject <= 0 {
		config.MaxInject = defaultMaxInject
	}
	if config.MaxScan <= 0 {
		config.MaxScan = defaultMaxScan
	}
	if config.MaxChars <= 0 {
		config.MaxChars = defaultMaxChars
	}
	if config.Threshold <= 0 {
		config.Threshold = defaultThreshold
	}
	return &InjectionPlanner{
		store:      store,
		normalizer: normalizer,
		scorer:     scorer,
		casual:     casual,
		planCache:  planCache,
		config:     config,
	}
}

// Plan selects memories for one turn.
//
// firstTurn switches selection to recency mode. settings carries the owner's
// personal limit and header prefix; the zero value means engine defaults. A
// store failure resolves to an empty plan; the returned error is advisory for
// logging, and the plan is always usable so a broken store can never break a
// turn.
func (p *InjectionPlanner) Plan(ctx context.Context, userID, query string, firstTurn bool, settings storage.UserSettings) (Plan, error) {
	// Casual turns skip the store entirely, whatever the mode would have
	// been: a bare greeting has nothing worth recalling against.
	if p.casual.IsCasual(query) {
		return Plan{Mode: ModeNone}, nil
	}

	if firstTurn {
		return p.planRecency(ctx, userID, settings)
	}
	return p.planRelevance(ctx, userID, query, settings)
}

// maxInject resolves the owner's personal limit against the engine default.
func (p *InjectionPlanner) maxInject(settings storage.UserSettings) int {
	if settings.MemoryLimit > 0 {
		return settings.MemoryLimit
	}
	return p.config.MaxInject
}

func (p *InjectionPlanner) header(settings storage.UserSettings) string {
	if prefix := strings.TrimSpace(settings.MemoryPrefix); prefix != "" {
		return prefix
	}
	return injectionHeader
}

func (p *InjectionPlanner) planRecency(ctx context.Context, userID string, settings storage.UserSettings) (Plan, error) {
	key := cacheKey(userID, ModeRecency, "")
	if plan, ok := p.cached(key); ok {
		return plan, nil
	}

	memories, err := p.store.ListRecent(ctx, userID, p.maxInject(settings))
	if err != nil {
		return Plan{Mode: ModeNone}, err
	}
	if len(memories) == 0 {
		return Plan{Mode: ModeNone}, nil
	}

	scored := make([]ScoredMemory, 0, len(memories))
	for _, mem := range memories {
		scored = append(scored, ScoredMemory{Memory: mem})
	}
	plan := p.finalize(ModeRecency, scored, p.header(settings))
	p.remember(key, plan)
	return plan, nil
}

func (p *InjectionPlanner) planRelevance(ctx context.Context, userID, query string, settings storage.UserSettings) (Plan, error) {
	key := cacheKey(userID, ModeRelevance, p.normalizer.Signature(query))
	if plan, ok := p.cached(key); ok {
		return plan, nil
	}

	candidates, err := p.store.Scan(ctx, userID, p.config.MaxScan)
	if err != nil {
		return Plan{Mode: ModeNone}, err
	}
	if len(candidates) > p.config.MaxScan {
		candidates = candidates[:p.config.MaxScan]
	}

	queryTokens := p.normalizer.Tokens(query)
	queryClean := p.normalizer.Clean(query)

	var scored []ScoredMemory
	for _, mem := range candidates {
		score := p.scorer.ScoreTokens(
			queryTokens,
			p.normalizer.Tokens(mem.Content),
			queryClean,
			p.normalizer.Clean(mem.Content),
		)
		if score > 0 && score >= p.config.Threshold {
			scored = append(scored, ScoredMemory{Memory: mem, Score: score})
		}
	}
	if len(scored) == 0 {
		plan := Plan{Mode: ModeNone}
		p.remember(key, plan)
		return plan, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
	})
	if limit := p.maxInject(settings); len(scored) > limit {
		scored = scored[:limit]
	}

	plan := p.finalize(ModeRelevance, scored, p.header(settings))
	p.remember(key, plan)
	return plan, nil
}

// finalize renders the injection block and drops whole memories from the tail
// until the block fits the character budget. A memory is never truncated
// mid-text; a plan whose header alone exceeds the budget renders empty.
func (p *InjectionPlanner) finalize(mode Mode, scored []ScoredMemory, header string) Plan {
	for len(scored) > 0 {
		block := render(scored, header)
		if len([]rune(block)) <= p.config.MaxChars {
			return Plan{Mode: mode, Memories: scored, Injection: block}
		}
		scored = scored[:len(scored)-1]
	}
	return Plan{Mode: ModeNone}
}

func render(scored []ScoredMemory, header string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, s := range scored {
		b.WriteString("\n- ")
		b.WriteString(s.Memory.Content)
	}
	return b.String()
}

func cacheKey(userID string, mode Mode, signature string) string {
	return userID + ":" + string(mode) + ":" + signature
}

func (p *InjectionPlanner) cached(key string) (Plan, bool) {
	if p.planCache == nil {
		return Plan{}, false
	}
	value, ok := p.planCache.Get(key)
	if !ok {
		return Plan{}, false
	}
	plan, ok := value.(Plan)
	if !ok {
		return Plan{}, false
	}
	plan.FromCache = true
	return plan, true
}

func (p *InjectionPlanner) remember(key string, plan Plan) {
	if p.planCache == nil {
		return
	}
	p.planCache.Put(key, plan)
}

// Invalidate drops the cached plans that a new memory for userID could
// change. Only the recency plan has a deterministic key; relevance plans age
// out with the TTL.
func (p *InjectionPlanner) Invalidate(userID string) {
	if p.planCache == nil {
		return
	}
	p.planCache.Delete(cacheKey(userID, ModeRecency, ""))
}

// Forget drops every cached plan for userID. Settings changes call this,
// since the owner's limit and prefix affect both selection and rendering of
// already-cached plans.
func (p *InjectionPlanner) Forget(userID string) {
	if p.planCache == nil {
		return
	}
	p.planCache.DeletePrefix(userID + ":")
}
