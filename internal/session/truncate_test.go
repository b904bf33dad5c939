package session

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"Short", "abc", 5, "abc"},
		{"Exact", "abcde", 5, "abcde"},
		{"ASCII", "abcdef", 3, "abc"},
		{"RuneBoundary", "ab€", 5, "ab€"},
		{"SplitRune", "ab€", 4, "ab"},
		{"SplitFirstRune", "€", 2, ""},
		{"FourByte", "a😀b", 3, "a"},
		{"Long", strings.Repeat("é", 200), 255, strings.Repeat("é", 127)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
			}
		})
	}
}
