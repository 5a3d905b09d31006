package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgate/memgate-go/pkg/command"
)

func TestParse_NotCommandShaped(t *testing.T) {
	for _, input := range []string{
		"hello there",
		"",
		"what is / in math?",
		"memories without the marker",
	} {
		_, ok := command.Parse(input)
		assert.False(t, ok, "input %q must not parse as a command", input)
	}
}

func TestParse_KnownCommands(t *testing.T) {
	cmd, ok := command.Parse("/memories 2")
	require.True(t, ok)
	assert.Equal(t, command.KindList, cmd.Kind)
	assert.Equal(t, []string{"2"}, cmd.Args)

	cmd, ok = command.Parse("/memory_search dark roast")
	require.True(t, ok)
	assert.Equal(t, command.KindSearch, cmd.Kind)
	assert.Equal(t, []string{"dark", "roast"}, cmd.Args)

	cmd, ok = command.Parse("  /memory_count  ")
	require.True(t, ok)
	assert.Equal(t, command.KindCount, cmd.Kind)
	assert.Empty(t, cmd.Args)
}

func TestParse_CaseInsensitiveCommandWord(t *testing.T) {
	cmd, ok := command.Parse("/Memory_Count")
	require.True(t, ok)
	assert.Equal(t, command.KindCount, cmd.Kind)
}

func TestParse_UnknownCommandStillParses(t *testing.T) {
	cmd, ok := command.Parse("/memory_recall everything")
	require.True(t, ok, "command-shaped input always parses")
	assert.Equal(t, command.KindUnknown, cmd.Kind)
	assert.Equal(t, "/memory_recall everything", cmd.Raw)
}

func TestIsCommandShaped(t *testing.T) {
	assert.True(t, command.IsCommandShaped("/memories"))
	assert.True(t, command.IsCommandShaped("   /anything"))
	assert.False(t, command.IsCommandShaped("hello /memories"))
}
