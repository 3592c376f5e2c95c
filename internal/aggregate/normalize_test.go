package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/info/entry/843?param=value", "https://www.example.com/info/entry/843"},
		{"https://www.example.com/info/entry/843", "https://www.example.com/info/entry/843"},
		{"https://x/a#section", "https://x/a"},
		{"https://x/a?p=1#frag", "https://x/a"},
		{"https://x/a#frag?not-a-query", "https://x/a"},
		{"https://x/a?", "https://x/a"},
		{"https://x/%E6%97%A5%E6%9C%AC/", "https://x/%E6%97%A5%E6%9C%AC/"},
		{"HTTPS://X.example/Path", "HTTPS://X.example/Path"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeURL(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "?")
			assert.NotContains(t, got, "#")
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://x/a?p=1",
		"https://x/a#top",
		"https://x/b",
		"https://x/c?x=1&y=2#z",
	}
	for _, in := range inputs {
		once := NormalizeURL(in)
		assert.Equal(t, once, NormalizeURL(once), "input %q", in)
	}
}
