package autocomplete

import (
	"regexp"
	"strings"
)

var partialToken = regexp.MustCompile(`\w+$`)

// Apply replaces the word token ending at cursor with suggestion and
// returns the new text together with the caret offset the editor should
// move to: between the first "()" of the suggestion if it has one,
// otherwise just after the inserted text.
func Apply(text string, cursor int, suggestion string) (string, int) {
	runes := []rune(text)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}

	before := string(runes[:cursor])
	start := cursor - len([]rune(partialToken.FindString(before)))

	var b strings.Builder
	b.WriteString(string(runes[:start]))
	b.WriteString(suggestion)
	b.WriteString(string(runes[cursor:]))

	caret := start + len([]rune(suggestion))
	if i := strings.Index(suggestion, "()"); i >= 0 {
		caret = start + len([]rune(suggestion[:i])) + 1
	}
	return b.String(), caret
}
