package agent

import "regexp"

// Action extraction: a completion must carry exactly one fenced bash block.
// Anything else, including nested or unterminated fences, counts as a format
// error rather than a guess at the most plausible command.
var actionPattern = regexp.MustCompile("(?s)```bash\\s*\n(.*?)\n```")

// ExtractAction returns the command inside the completion's bash block and
// the number of blocks found. The action is only valid when count is 1.
func ExtractAction(completion string) (action string, count int) {
	matches := actionPattern.FindAllStringSubmatch(completion, -1)
	if len(matches) == 1 {
		action = matches[0][1]
	}
	return action, len(matches)
}
