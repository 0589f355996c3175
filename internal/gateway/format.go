package gateway

import "strings"

// fieldSeparator delimits tmux -F output. ASCII Unit Separator cannot occur
// in session or window names typed by a user.
const fieldSeparator = "\x1f"

var paneFormat = joinFormat("#{pane_id}", "#{session_name}", "#{window_name}")

func joinFormat(fields ...string) string {
	return strings.Join(fields, fieldSeparator)
}

// splitFields splits one formatted line. Older tmux builds escape the
// separator as "\037"; that form is accepted too. Names may contain any
// other character, underscores included.
func splitFields(line string, n int) []string {
	for _, sep := range []string{fieldSeparator, `\037`} {
		if strings.Contains(line, sep) {
			return strings.SplitN(line, sep, n)
		}
	}
	return []string{line}
}
