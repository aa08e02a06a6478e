package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/srv", "/srv", true},
		{"/srv", "/srv/a/b", true},
		{"/srv", "/srv/../etc", false},
		{"/srv", "/srvx", false},
		{"/srv", "/", false},
		{"/srv", "/srv/..data", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.root, tt.path), "within(%q, %q)", tt.root, tt.path)
	}
}

func TestMatchingParen(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"$(ls)", 4},
		{"$(echo (a) b)x", 12},
		{`$(echo ")")`, 10},
		{`$(echo ')')`, 10},
		{`$(echo \))`, 9},
		{"$(ls", -1},
		{"$(echo 'x)", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchingParen(tt.s, 1), "matchingParen(%q)", tt.s)
	}
}

func TestValidParameter(t *testing.T) {
	for _, name := range []string{"HOME", "_x", "a1", "1", "12", "?", "$", "#"} {
		assert.True(t, validParameter(name), name)
	}
	for _, name := range []string{"", "1a", "a-b", "??", "a b"} {
		assert.False(t, validParameter(name), name)
	}
}

func TestQuoteAlias(t *testing.T) {
	assert.Equal(t, `'ls -l'`, quoteAlias("ls -l"))
	assert.Equal(t, `'echo '\''hi'\'''`, quoteAlias("echo 'hi'"))
}

func TestEnvironMap(t *testing.T) {
	m := environMap([]string{"A=1", "B=x=y", "=skip", "NOEQUALS", "EMPTY="})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, m)
}

func TestFieldList_Substituted(t *testing.T) {
	var l fieldList
	l.unquoted("pre")
	l.substituted("a b ")
	l.unquoted("post")

	texts := make([]string, len(l.fields))
	for i, f := range l.fields {
		texts[i] = f.text.String()
	}
	assert.Equal(t, []string{"prea", "b", "post"}, texts)
}

func TestFieldList_QuotedPattern(t *testing.T) {
	var l fieldList
	l.quoted("*.go")
	l.unquoted("?")

	f := l.fields[0]
	assert.Equal(t, "*.go?", f.text.String())
	assert.Equal(t, `\*.go?`, f.pattern.String())
	assert.True(t, f.glob)
}
