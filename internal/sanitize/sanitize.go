// Package sanitize turns raw tmux captures into text that reads well on a
// narrow phone screen: escape sequences and box-drawing chrome removed,
// blank runs collapsed, and the tail kept within a line or character budget.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Options bounds the sanitized output. Zero MaxLines or MaxChars disables
// that bound.
type Options struct {
	MaxLines    int
	MaxChars    int
	MaxBlankRun int
}

const defaultMaxBlankRun = 1

// Notification keeps the last contextLines lines for push messages.
func Notification(contextLines int) Options {
	return Options{MaxLines: contextLines, MaxBlankRun: defaultMaxBlankRun}
}

// Display keeps the full capture bounded by maxChars for the web UI.
func Display(maxChars int) Options {
	return Options{MaxChars: maxChars, MaxBlankRun: defaultMaxBlankRun}
}

// decorative holds the characters a line may consist of and still count as
// chrome: box drawing, block elements and ASCII rules.
const decorative = "─━│┃┄┅┆┇┈┉┊┋┌┍┎┏┐┑┒┓└┕┖┗┘┙┚┛├┝┞┟┠┡┢┣┤┥┦┧┨┩┪┫┬┭┮┯┰┱┲┳┴┵┶┷┸┹┺┻┼┽┾┿╀╁╂╃╄╅╆╇╈╉╊╋" +
	"═║╒╓╔╕╖╗╘╙╚╛╜╝╞╟╠╡╢╣╤╥╦╧╨╩╪╫╬╭╮╯╰╴╵╶╷╸╹╺╻╼╽╾╿" +
	"▀▁▂▃▄▅▆▇█▉▊▋▌▍▎▏▐░▒▓▔▕■□▪▫" +
	"-_=~"

// Sanitize cleans raw for display. It is idempotent:
// Sanitize(Sanitize(x, o), o) == Sanitize(x, o).
func Sanitize(raw string, opts Options) string {
	if raw == "" {
		return ""
	}
	if opts.MaxBlankRun < 0 {
		opts.MaxBlankRun = 0
	}
	text := stripControl(ansi.Strip(strings.ReplaceAll(raw, "\r\n", "\n")))

	kept := normalize(strings.Split(text, "\n"), opts.MaxBlankRun)
	if opts.MaxLines > 0 && len(kept) > opts.MaxLines {
		kept = trimBlankEdges(kept[len(kept)-opts.MaxLines:])
	}
	out := strings.Join(kept, "\n")
	if opts.MaxChars > 0 && utf8.RuneCountInString(out) > opts.MaxChars {
		// The cut may leave a partial first line; normalising again keeps
		// the result a fixed point.
		out = strings.Join(normalize(strings.Split(tailChars(out, opts.MaxChars), "\n"), opts.MaxBlankRun), "\n")
	}
	return out
}

// normalize trims trailing whitespace, drops decorative lines, collapses
// blank runs beyond maxBlankRun and trims blank lines at both ends.
func normalize(lines []string, maxBlankRun int) []string {
	kept := make([]string, 0, len(lines))
	blankRun := 0
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blankRun++
			if blankRun > maxBlankRun {
				continue
			}
			kept = append(kept, line)
			continue
		}
		if isDecorative(line) {
			continue
		}
		blankRun = 0
		kept = append(kept, line)
	}
	return trimBlankEdges(kept)
}

// LastNonEmpty returns the last n non-blank lines of text in order.
func LastNonEmpty(text string, n int) string {
	if n <= 0 || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	picked := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(picked) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			picked = append(picked, lines[i])
		}
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, "\n")
}

func isDecorative(line string) bool {
	hasRule := false
	for _, r := range line {
		if r == ' ' || r == '\t' {
			continue
		}
		if !strings.ContainsRune(decorative, r) {
			return false
		}
		hasRule = true
	}
	return hasRule
}

// stripControl drops C0/C1 control characters left after escape sequence
// removal, keeping newlines and tabs.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	return lines[start:end]
}

// tailChars keeps at most maxChars trailing runes, cutting at a line
// boundary when one exists inside the window.
func tailChars(s string, maxChars int) string {
	runes := []rune(s)
	tail := string(runes[len(runes)-maxChars:])
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return tail
}
