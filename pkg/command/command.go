// Package command recognizes and executes slash commands over the memory
// store.
//
// Recognition and execution are separate concerns: a single parse step turns
// raw input into a tagged Command value, and a dispatch table maps each kind
// to a handler. "Command-shaped but unknown" is a first-class parse result,
// not a fallthrough: anything that starts with the command marker is
// excluded from persistence no matter what happens afterwards.
package command

import "strings"

// Marker is the prefix that makes input command-shaped.
const Marker = "/"

// Kind identifies a recognized command.
type Kind string

const (
	// KindUnknown is command-shaped input matching no known command.
	KindUnknown Kind = "unknown"

	// KindList lists memories, paginated: /memories [page]
	KindList Kind = "memories"

	// KindSearch searches memories by term: /memory_search <term>
	KindSearch Kind = "memory_search"

	// KindRecent shows the newest N memories: /memory_recent [n]
	KindRecent Kind = "memory_recent"

	// KindCount shows the memory count: /memory_count
	KindCount Kind = "memory_count"

	// KindExport exports memories as text: /memory_export
	KindExport Kind = "memory_export"

	// KindAdd stores an explicit memory: /memory_add <text>
	KindAdd Kind = "memory_add"

	// KindClear deletes all memories: /clear_memories
	KindClear Kind = "clear_memories"

	// KindConfig displays the active configuration: /memory_config
	KindConfig Kind = "memory_config"

	// KindPrivateMode pauses or resumes memory for the owner:
	// /private_mode on|off
	KindPrivateMode Kind = "private_mode"

	// KindLimit sets the owner's injection cap: /memory_limit <n>
	KindLimit Kind = "memory_limit"

	// KindPrefix sets the owner's injection header: /memory_prefix <text>
	KindPrefix Kind = "memory_prefix"

	// KindStats shows store and cache statistics: /memory_stats
	KindStats Kind = "memory_stats"

	// KindStatus shows system and privacy status: /memory_status
	KindStatus Kind = "memory_status"

	// KindCleanup removes duplicate memories: /memory_cleanup
	KindCleanup Kind = "memory_cleanup"

	// KindBackup summarizes the owner's memories: /memory_backup
	KindBackup Kind = "memory_backup"

	// KindHelp lists available commands: /memory_help
	KindHelp Kind = "memory_help"
)

// Command is a parsed command invocation.
type Command struct {
	// Kind is the recognized command kind, or KindUnknown.
	Kind Kind

	// Args are the whitespace-separated arguments after the command word.
	Args []string

	// Raw is the original input, trimmed.
	Raw string
}

// knownKinds maps the command word (without marker) to its kind.
var knownKinds = map[string]Kind{
	"memories":       KindList,
	"memory_search":  KindSearch,
	"memory_recent":  KindRecent,
	"memory_count":   KindCount,
	"memory_export":  KindExport,
	"memory_add":     KindAdd,
	"clear_memories": KindClear,
	"memory_config":  KindConfig,
	"private_mode":   KindPrivateMode,
	"memory_limit":   KindLimit,
	"memory_prefix":  KindPrefix,
	"memory_stats":   KindStats,
	"memory_status":  KindStatus,
	"memory_cleanup": KindCleanup,
	"memory_backup":  KindBackup,
	"memory_help":    KindHelp,
}

// IsCommandShaped reports whether input begins with the command marker.
// This check alone decides persistence suppression.
func IsCommandShaped(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), Marker)
}

// Parse turns command-shaped input into a Command. Input that is not
// command-shaped returns ok=false; unrecognized command words return a
// Command of KindUnknown with ok=true.
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, Marker) {
		return Command{}, false
	}

	fields := strings.Fields(trimmed)
	word := strings.ToLower(strings.TrimPrefix(fields[0], Marker))

	kind, known := knownKinds[word]
	if !known {
		kind = KindUnknown
	}

	return Command{
		Kind: kind,
		Args: fields[1:],
		Raw:  trimmed,
	}, true
}
