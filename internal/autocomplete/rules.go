// Package autocomplete implements the explicit-request code completion
// used by the editor: the rule table served by the relay, the HTTP
// client that calls it, and the token replacement applied locally.
//
// Offsets are counted in runes, not bytes.
package autocomplete

import (
	"regexp"
	"strings"
)

// Request is the body of POST /autocomplete/.
type Request struct {
	Code           string `json:"code"`
	CursorPosition int    `json:"cursorPosition"`
	Language       string `json:"language"`
}

// Response is the answer to POST /autocomplete/. An empty Suggestion
// means no rule matched.
type Response struct {
	Suggestion string `json:"suggestion"`
}

var lastIdentifier = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)$`)

type rule struct {
	prefix  string
	snippet string
}

// Checked in order; the first prefix match wins.
var pythonRules = []rule{
	{"for", "for i in range(): {\n    \n}\n"},
	{"if", "if (): {\n    \n}\n"},
	{"wh", "while (): {\n    \n}\n"},
	{"de", "def (): {\n    \n}\n"},
	{"pr", "print()"},
}

// Suggest returns the snippet for the identifier that ends at cursor.
// A cursor outside (0, len] means the end of code. Only python has
// rules.
func Suggest(code string, cursor int, language string) string {
	if strings.ToLower(language) != "python" {
		return ""
	}

	runes := []rune(code)
	if cursor <= 0 || cursor > len(runes) {
		cursor = len(runes)
	}

	word := strings.ToLower(lastIdentifier.FindString(string(runes[:cursor])))
	if word == "" {
		return ""
	}
	for _, r := range pythonRules {
		if strings.HasPrefix(word, r.prefix) {
			return r.snippet
		}
	}
	return ""
}
