package autocomplete

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		cursor   int
		language string
		want     string
	}{
		{"for", "fo", 0, "python", ""},
		{"for full", "x = 1\nfor", 0, "python", "for i in range(): {\n    \n}\n"},
		{"for prefix only matches whole rule prefix", "forx", 0, "python", "for i in range(): {\n    \n}\n"},
		{"if", "if", 2, "python", "if (): {\n    \n}\n"},
		{"while", "wh", 2, "Python", "while (): {\n    \n}\n"},
		{"def", "DE", 2, "python", "def (): {\n    \n}\n"},
		{"print", "pri", 3, "python", "print()"},
		{"cursor mid text", "pr + other", 2, "python", "print()"},
		{"cursor past end means end", "pr", 99, "python", "print()"},
		{"no identifier", "x = (", 0, "python", ""},
		{"no rule", "zzz", 0, "python", ""},
		{"other language", "pr", 2, "go", ""},
		{"identifier cannot start with digit", "1pr", 0, "python", "print()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggest(tt.code, tt.cursor, tt.language))
		})
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		cursor     int
		suggestion string
		wantText   string
		wantCaret  int
	}{
		{"replaces token and lands inside parens", "pr", 2, "print()", "print()", 6},
		{"keeps text after cursor", "x\npr\ny", 4, "print()", "x\nprint()\ny", 8},
		{"no token at cursor inserts", "a ", 2, "print()", "a print()", 8},
		{"no parens puts caret after insertion", "fo", 2, "foo", "foo", 3},
		{"multi-byte runes", "é pr", 4, "print()", "é print()", 8},
		{"cursor clamped", "pr", 10, "print()", "print()", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, caret := Apply(tt.text, tt.cursor, tt.suggestion)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantCaret, caret)
		})
	}
}

func TestClientSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/autocomplete/", r.URL.Path)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(Response{Suggestion: Suggest(req.Code, req.CursorPosition, req.Language)})
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, nil).Suggest(context.Background(), Request{Code: "pr", CursorPosition: 2, Language: "python"})
	require.NoError(t, err)
	assert.Equal(t, "print()", got)
}

func TestClientSuggestFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Suggest(context.Background(), Request{})
	assert.Error(t, err)
}
