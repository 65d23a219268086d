package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractActionSingleBlock(t *testing.T) {
	action, count := ExtractAction("Here is the fix.\n\n```bash\ngrep -rn pattern .\n```\n")
	require.Equal(t, 1, count)
	require.Equal(t, "grep -rn pattern .", action)
}

func TestExtractActionMultiline(t *testing.T) {
	completion := "```bash\ncd /repo\nls -la\n```"
	action, count := ExtractAction(completion)
	require.Equal(t, 1, count)
	require.Equal(t, "cd /repo\nls -la", action)
}

func TestExtractActionZeroBlocks(t *testing.T) {
	for _, completion := range []string{
		"no code here",
		"```python\nprint(1)\n```",
		"```bash\nmissing closing fence",
		"",
	} {
		action, count := ExtractAction(completion)
		require.Zero(t, count, "completion: %q", completion)
		require.Empty(t, action)
	}
}

func TestExtractActionMultipleBlocks(t *testing.T) {
	completion := "```bash\nfirst\n```\nand then\n```bash\nsecond\n```"
	action, count := ExtractAction(completion)
	require.Equal(t, 2, count)
	require.Empty(t, action)
}
