package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/memgate/memgate-go/pkg/storage"
)

// exportFetchLimit bounds /memory_export, /memory_cleanup, and
// /memory_backup so a very large store cannot blow up a single command.
const exportFetchLimit = 1000

// personalLimitMax bounds /memory_limit. Matches the settings cap.
const personalLimitMax = 500

// prefixMaxLen bounds /memory_prefix, in runes.
const prefixMaxLen = 100

func helpText() string {
	return strings.TrimSpace(`
Memory commands:
  /memories [page]        List your memories, paginated
  /memory_search <term>   Search your memories
  /memory_recent [n]      Show your newest memories
  /memory_count           Show how many memories you have
  /memory_export          Export your memories as text
  /memory_add <text>      Save a memory explicitly
  /clear_memories         Delete all your memories
  /memory_config          Show the active configuration
  /private_mode on|off    Pause or resume memory injection and saving
  /memory_limit <n>       Cap how many memories are injected (0 = default)
  /memory_prefix <text>   Customize the injection header
  /memory_stats           Show store and cache statistics
  /memory_status          Show system and privacy status
  /memory_cleanup         Remove duplicate memories
  /memory_backup          Summarize your memories for backup
  /memory_help            Show this help
`)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (r *Router) loadSettings(ctx context.Context, userID string) (*storage.UserSettings, error) {
	settings, err := r.settings.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &storage.UserSettings{UserID: userID}
	}
	return settings, nil
}

func (r *Router) saveSettings(ctx context.Context, settings *storage.UserSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	if err := r.settings.SaveSettings(ctx, settings); err != nil {
		return err
	}
	// Cached plans were computed under the old settings.
	if r.invalidate != nil {
		r.invalidate(settings.UserID)
	}
	return nil
}

func formatMemory(mem *storage.Memory) string {
	return fmt.Sprintf("- [%s] %s", mem.CreatedAt.Format("2006-01-02"), mem.Content)
}

func (r *Router) handleList(ctx context.Context, userID string, cmd Command) (string, error) {
	page := 1
	if len(cmd.Args) > 0 {
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n < 1 {
			return "Usage: /memories [page]", nil
		}
		page = n
	}

	total, err := r.store.Count(ctx, userID)
	if err != nil {
		return "", err
	}
	if total == 0 {
		return "You have no memories yet.", nil
	}

	pageSize := r.config.PageSize
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if page > pages {
		return fmt.Sprintf("Page %d is out of range (1-%d).", page, pages), nil
	}

	// ListRecent has no offset, so fetch through the requested page and
	// slice. Pages deep into a large store stay bounded by page*pageSize.
	memories, err := r.store.ListRecent(ctx, userID, page*pageSize)
	if err != nil {
		return "", err
	}
	start := (page - 1) * pageSize
	if start > len(memories) {
		start = len(memories)
	}
	pageMemories := memories[start:]

	var b strings.Builder
	fmt.Fprintf(&b, "Your memories (page %d of %d, %d total):\n", page, pages, total)
	for _, mem := range pageMemories {
		b.WriteString(formatMemory(mem))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) handleSearch(ctx context.Context, userID string, cmd Command) (string, error) {
	term := strings.Join(cmd.Args, " ")
	if strings.TrimSpace(term) == "" {
		return "Usage: /memory_search <term>", nil
	}

	scanLimit := r.config.Limits.MaxMemoriesToScan
	if scanLimit <= 0 {
		scanLimit = 300
	}
	candidates, err := r.store.Scan(ctx, userID, scanLimit)
	if err != nil {
		return "", err
	}

	type hit struct {
		mem   *storage.Memory
		score float64
	}
	var hits []hit
	for _, mem := range candidates {
		score := r.scorer.Score(term, mem.Content)
		if score > 0 {
			hits = append(hits, hit{mem: mem, score: score})
		}
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No memories matched %q.", term), nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].mem.CreatedAt.After(hits[j].mem.CreatedAt)
	})
	if len(hits) > r.config.MaxSearchResults {
		hits = hits[:r.config.MaxSearchResults]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Memories matching %q:\n", term)
	for _, h := range hits {
		b.WriteString(formatMemory(h.mem))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) handleRecent(ctx context.Context, userID string, cmd Command) (string, error) {
	n := 5
	if len(cmd.Args) > 0 {
		parsed, err := strconv.Atoi(cmd.Args[0])
		if err != nil || parsed < 1 {
			return "Usage: /memory_recent [n]", nil
		}
		n = parsed
	}
	if n > r.config.MaxRecent {
		n = r.config.MaxRecent
	}

	memories, err := r.store.ListRecent(ctx, userID, n)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "You have no memories yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your %d most recent memories:\n", len(memories))
	for _, mem := range memories {
		b.WriteString(formatMemory(mem))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) handleCount(ctx context.Context, userID string, cmd Command) (string, error) {
	total, err := r.store.Count(ctx, userID)
	if err != nil {
		return "", err
	}
	switch total {
	case 0:
		return "You have no memories yet.", nil
	case 1:
		return "You have 1 memory.", nil
	default:
		return fmt.Sprintf("You have %d memories.", total), nil
	}
}

func (r *Router) handleExport(ctx context.Context, userID string, cmd Command) (string, error) {
	memories, err := r.store.ListRecent(ctx, userID, exportFetchLimit)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "You have no memories yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Memory export (%d memories, %s):\n", len(memories), time.Now().Format("2006-01-02"))
	for _, mem := range memories {
		fmt.Fprintf(&b, "[%s] %s\n", mem.CreatedAt.Format(time.RFC3339), mem.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) handleAdd(ctx context.Context, userID string, cmd Command) (string, error) {
	content := strings.TrimSpace(strings.Join(cmd.Args, " "))
	if content == "" {
		return "Usage: /memory_add <text>", nil
	}

	memory := &storage.Memory{
		ID:          r.node.Generate().Int64(),
		UserID:      userID,
		Content:     content,
		ContentHash: r.normalizer.ContentHash(content),
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.Save(ctx, memory); err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved: %s", content), nil
}

func (r *Router) handleClear(ctx context.Context, userID string, cmd Command) (string, error) {
	removed, err := r.store.DeleteAll(ctx, userID)
	if err != nil {
		return "", err
	}
	if removed == 0 {
		return "You had no memories to delete.", nil
	}
	return fmt.Sprintf("Deleted %d memories.", removed), nil
}

func (r *Router) handleConfig(ctx context.Context, userID string, cmd Command) (string, error) {
	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return "", err
	}

	l := r.config.Limits
	var b strings.Builder
	b.WriteString("Memory configuration:\n")
	fmt.Fprintf(&b, "  max memories injected:  %d\n", l.MaxMemoriesToInject)
	fmt.Fprintf(&b, "  max memories scanned:   %d\n", l.MaxMemoriesToScan)
	fmt.Fprintf(&b, "  max injection chars:    %d\n", l.MaxInjectionChars)
	fmt.Fprintf(&b, "  relevance threshold:    %.2f\n", l.RelevanceThreshold)
	fmt.Fprintf(&b, "  similarity threshold:   %.2f\n", l.SimilarityThreshold)
	fmt.Fprintf(&b, "  response length bounds: %d-%d\n", l.MinResponseLength, l.MaxResponseLength)
	fmt.Fprintf(&b, "  cache TTL:              %ds\n", l.CacheTTLSeconds)
	fmt.Fprintf(&b, "  cache max size:         %d\n", l.CacheMaxSize)

	b.WriteString("Your settings:\n")
	fmt.Fprintf(&b, "  private mode:  %s\n", onOff(settings.PrivateMode))
	if settings.MemoryLimit > 0 {
		fmt.Fprintf(&b, "  memory limit:  %d\n", settings.MemoryLimit)
	} else {
		b.WriteString("  memory limit:  engine default\n")
	}
	if settings.MemoryPrefix != "" {
		fmt.Fprintf(&b, "  memory prefix: %s", settings.MemoryPrefix)
	} else {
		b.WriteString("  memory prefix: default")
	}
	return b.String(), nil
}

func (r *Router) handlePrivateMode(ctx context.Context, userID string, cmd Command) (string, error) {
	if len(cmd.Args) != 1 {
		return "Usage: /private_mode on|off", nil
	}
	mode := strings.ToLower(cmd.Args[0])
	if mode != "on" && mode != "off" {
		return "Usage: /private_mode on|off", nil
	}

	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return "", err
	}
	settings.PrivateMode = mode == "on"
	if err := r.saveSettings(ctx, settings); err != nil {
		return "", err
	}

	if settings.PrivateMode {
		return "Private mode enabled. Memories are neither injected nor saved until you turn it off.", nil
	}
	return "Private mode disabled. Memory injection and saving are active again.", nil
}

func (r *Router) handleLimit(ctx context.Context, userID string, cmd Command) (string, error) {
	if len(cmd.Args) != 1 {
		return "Usage: /memory_limit <n> (0 = engine default)", nil
	}
	n, err := strconv.Atoi(cmd.Args[0])
	if err != nil || n < 0 {
		return "Usage: /memory_limit <n> (0 = engine default)", nil
	}
	if n > personalLimitMax {
		return fmt.Sprintf("The limit must be between 0 and %d (0 = engine default).", personalLimitMax), nil
	}

	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return "", err
	}
	settings.MemoryLimit = n
	if err := r.saveSettings(ctx, settings); err != nil {
		return "", err
	}

	if n == 0 {
		return "Memory limit reset to the engine default.", nil
	}
	return fmt.Sprintf("Memory limit set to %d.", n), nil
}

func (r *Router) handlePrefix(ctx context.Context, userID string, cmd Command) (string, error) {
	text := strings.TrimSpace(strings.Join(cmd.Args, " "))
	if text == "" {
		return `Usage: /memory_prefix <text> ("default" restores the standard header)`, nil
	}
	if len([]rune(text)) > prefixMaxLen {
		return fmt.Sprintf("The prefix cannot exceed %d characters.", prefixMaxLen), nil
	}

	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(text, "default") {
		settings.MemoryPrefix = ""
		if err := r.saveSettings(ctx, settings); err != nil {
			return "", err
		}
		return "Memory prefix restored to the default header.", nil
	}
	settings.MemoryPrefix = text
	if err := r.saveSettings(ctx, settings); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory prefix set to: %s", text), nil
}

func (r *Router) handleStatus(ctx context.Context, userID string, cmd Command) (string, error) {
	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Memory status:\n")
	b.WriteString("  system:       active\n")
	fmt.Fprintf(&b, "  private mode: %s\n", onOff(settings.PrivateMode))
	if r.cacheStats != nil {
		stats := r.cacheStats()
		fmt.Fprintf(&b, "  plan cache:   %d entries (TTL %ds)", stats.Size, r.config.Limits.CacheTTLSeconds)
	} else {
		b.WriteString("  plan cache:   disabled")
	}
	return b.String(), nil
}

func (r *Router) handleCleanup(ctx context.Context, userID string, cmd Command) (string, error) {
	memories, err := r.store.ListRecent(ctx, userID, exportFetchLimit)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "You have no memories yet.", nil
	}

	// Newest first, so the newest copy of each duplicate survives.
	seen := make(map[string]struct{}, len(memories))
	removed := 0
	for _, mem := range memories {
		hash := mem.ContentHash
		if hash == "" {
			hash = r.normalizer.ContentHash(mem.Content)
		}
		if _, dup := seen[hash]; dup {
			ok, err := r.store.Delete(ctx, userID, mem.ID)
			if err != nil {
				return "", err
			}
			if ok {
				removed++
			}
			continue
		}
		seen[hash] = struct{}{}
	}

	switch removed {
	case 0:
		return "No duplicate memories found.", nil
	case 1:
		return "Removed 1 duplicate memory.", nil
	default:
		return fmt.Sprintf("Removed %d duplicate memories.", removed), nil
	}
}

func (r *Router) handleBackup(ctx context.Context, userID string, cmd Command) (string, error) {
	memories, err := r.store.ListRecent(ctx, userID, exportFetchLimit)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "You have no memories yet.", nil
	}

	size := 0
	for _, mem := range memories {
		size += len([]rune(mem.Content))
	}

	var b strings.Builder
	b.WriteString("Memory backup summary:\n")
	fmt.Fprintf(&b, "  memories: %d\n", len(memories))
	fmt.Fprintf(&b, "  size:     %d characters\n", size)
	fmt.Fprintf(&b, "  date:     %s\n", time.Now().Format("2006-01-02"))
	b.WriteString("Use /memory_export for the full text export.")
	return b.String(), nil
}

func (r *Router) handleStats(ctx context.Context, userID string, cmd Command) (string, error) {
	total, err := r.store.Count(ctx, userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Memory statistics:\n")
	fmt.Fprintf(&b, "  stored memories: %d\n", total)
	if r.cacheStats != nil {
		stats := r.cacheStats()
		fmt.Fprintf(&b, "  cache entries:   %d\n", stats.Size)
		fmt.Fprintf(&b, "  cache hits:      %d\n", stats.Hits)
		fmt.Fprintf(&b, "  cache misses:    %d\n", stats.Misses)
		fmt.Fprintf(&b, "  cache evictions: %d\n", stats.Evictions)
	}
	l := r.config.Limits
	fmt.Fprintf(&b, "  injection limit: %d memories / %d chars", l.MaxMemoriesToInject, l.MaxInjectionChars)
	return b.String(), nil
}

func (r *Router) handleHelp(ctx context.Context, userID string, cmd Command) (string, error) {
	return helpText(), nil
}
