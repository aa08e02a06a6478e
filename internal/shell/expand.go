package shell

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shellerrors "github.com/firefly-engineering/shellcore/internal/errors"
)

// field is one word being built by the expander. pattern mirrors text with
// quoted glob characters escaped so it can be handed to filepath.Glob.
type field struct {
	text    strings.Builder
	pattern strings.Builder
	glob    bool
}

type fieldList struct {
	fields []*field
	cur    *field
}

func (l *fieldList) current() *field {
	if l.cur == nil {
		l.cur = &field{}
		l.fields = append(l.fields, l.cur)
	}
	return l.cur
}

// split ends the current field.
func (l *fieldList) split() {
	l.cur = nil
}

func (l *fieldList) quoted(s string) {
	f := l.current()
	f.text.WriteString(s)
	for _, ch := range s {
		if strings.ContainsRune(`*?[\`, ch) {
			f.pattern.WriteByte('\\')
		}
		f.pattern.WriteRune(ch)
	}
}

func (l *fieldList) unquoted(s string) {
	f := l.current()
	f.text.WriteString(s)
	f.pattern.WriteString(s)
	if strings.ContainsAny(s, "*?[") {
		f.glob = true
	}
}

// substituted adds the result of an unquoted expansion, split on blanks.
func (l *fieldList) substituted(s string) {
	if s == "" {
		return
	}
	if isBlank(s[0]) {
		l.split()
	}
	for i, part := range strings.Fields(s) {
		if i > 0 {
			l.split()
		}
		l.unquoted(part)
	}
	if isBlank(s[len(s)-1]) {
		l.split()
	}
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n'
}

// expandWords expands raw words into arguments: parameters, command
// substitutions and tildes are replaced, unquoted substitutions are split
// on blanks, unquoted patterns are globbed against the working directory
// and quotes are removed.
func (r *runner) expandWords(words []string) ([]string, error) {
	var out []string
	for _, word := range words {
		fields, err := r.expandWord(word, true)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.glob {
				if matches := r.glob(f.pattern.String()); len(matches) > 0 {
					out = append(out, matches...)
					continue
				}
			}
			out = append(out, f.text.String())
		}
	}
	return out, nil
}

// expandOne expands a word into a single string, without field splitting
// or globbing.
func (r *runner) expandOne(word string) (string, error) {
	if word == "" {
		return "", nil
	}
	fields, err := r.expandWord(word, false)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.text.String()
	}
	return strings.Join(parts, " "), nil
}

func (r *runner) expandWord(word string, split bool) ([]*field, error) {
	var l fieldList
	substituted := l.substituted
	if !split {
		substituted = l.quoted
	}

	i := 0
	if strings.HasPrefix(word, "~") && (len(word) == 1 || word[1] == '/') {
		l.quoted(r.core.Home())
		i = 1
	}

	for i < len(word) {
		ch := word[i]
		switch ch {
		case '\'':
			end := strings.IndexByte(word[i+1:], '\'')
			if end < 0 {
				return nil, shellerrors.BadValue("unclosed quote in " + word)
			}
			l.quoted(word[i+1 : i+1+end])
			i += end + 2

		case '"':
			l.current()
			i++
			for i < len(word) && word[i] != '"' {
				switch {
				case word[i] == '\\' && i+1 < len(word) && strings.IndexByte("$`\"\\\n", word[i+1]) >= 0:
					if word[i+1] != '\n' {
						l.quoted(word[i+1 : i+2])
					}
					i += 2
				case word[i] == '$':
					value, n, err := r.parameter(word[i:])
					if err != nil {
						return nil, err
					}
					l.quoted(value)
					i += n
				default:
					l.quoted(word[i : i+1])
					i++
				}
			}
			if i >= len(word) {
				return nil, shellerrors.BadValue("unclosed quote in " + word)
			}
			i++

		case '\\':
			if i+1 < len(word) {
				l.quoted(word[i+1 : i+2])
				i += 2
			} else {
				i++
			}

		case '$':
			value, n, err := r.parameter(word[i:])
			if err != nil {
				return nil, err
			}
			if n == 1 {
				l.unquoted("$")
			} else {
				substituted(value)
			}
			i += n

		default:
			start := i
			for i < len(word) && strings.IndexByte(`'"\$`, word[i]) < 0 {
				i++
			}
			l.unquoted(word[start:i])
		}
	}
	return l.fields, nil
}

// parameter expands the "$..." at the start of s and returns the value and
// the number of bytes consumed. A lone "$" consumes one byte and expands to
// itself.
func (r *runner) parameter(s string) (string, int, error) {
	if len(s) < 2 {
		return "$", 1, nil
	}
	switch ch := s[1]; {
	case ch == '{':
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return "", 0, shellerrors.BadValue("bad substitution: " + s)
		}
		name := s[2:end]
		if !validParameter(name) {
			return "", 0, shellerrors.BadValue("bad substitution: " + s[:end+1])
		}
		return r.lookup(name), end + 1, nil

	case ch == '(':
		end := matchingParen(s, 1)
		if end < 0 {
			return "", 0, shellerrors.BadValue("unclosed command substitution: " + s)
		}
		out, err := r.substitute(s[2:end])
		return out, end + 1, err

	case ch == '?' || ch == '$' || ch == '#' || (ch >= '0' && ch <= '9'):
		return r.lookup(s[1:2]), 2, nil

	case ch == '_' || isLetter(ch):
		n := 2
		for n < len(s) && (s[n] == '_' || isLetter(s[n]) || isDigit(s[n])) {
			n++
		}
		return r.lookup(s[1:n]), n, nil
	}
	return "$", 1, nil
}

func (r *runner) lookup(name string) string {
	c := r.core
	switch name {
	case "?":
		return strconv.Itoa(int(c.ExitCode()))
	case "$":
		return strconv.Itoa(os.Getpid())
	case "#":
		n := 0
		for {
			if _, ok := c.ValueGet(strconv.Itoa(n + 1)); !ok {
				return strconv.Itoa(n)
			}
			n++
		}
	case "0":
		if v, ok := c.ValueGet("0"); ok {
			return v
		}
		return c.name
	}
	v, _ := c.ValueGet(name)
	return v
}

func validParameter(name string) bool {
	if name == "" {
		return false
	}
	if len(name) == 1 && strings.IndexByte("?$#", name[0]) >= 0 {
		return true
	}
	if isDigit(name[0]) {
		for i := 0; i < len(name); i++ {
			if !isDigit(name[i]) {
				return false
			}
		}
		return true
	}
	for i := 0; i < len(name); i++ {
		if name[i] != '_' && !isLetter(name[i]) && !(i > 0 && isDigit(name[i])) {
			return false
		}
	}
	return true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// matchingParen returns the index of the parenthesis closing the one at
// open, skipping quoted text, or -1.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return -1
			}
			i += end + 1
		case '"':
			for i++; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// substitute runs src and returns its standard output without trailing
// newlines. exit, return and loop control do not leave the substitution.
func (r *runner) substitute(src string) (string, error) {
	e, err := r.core.parser.Parse(src)
	if err != nil {
		return "", shellerrors.ParseError("command substitution", err)
	}

	savedFlow, savedLoops, savedCalls := r.flow, r.loops, r.calls
	r.loops, r.calls = 0, 0
	out, rc := r.captured(func() uint8 { return r.runExpression(e) })
	interrupted := r.flow == flowInterrupt
	r.flow, r.loops, r.calls = savedFlow, savedLoops, savedCalls
	if interrupted {
		r.flow = flowInterrupt
	}
	r.substitution = int(rc)

	r.forward(out)
	return strings.TrimRight(out.stdout.String(), "\n"), nil
}

// glob matches pattern relative to the working directory. Hidden files
// only match patterns starting with a dot.
func (r *runner) glob(pattern string) []string {
	wrkdir := r.core.Wrkdir()
	abs := pattern
	if !filepath.IsAbs(pattern) {
		abs = wrkdir + string(filepath.Separator) + pattern
	}
	matches, err := filepath.Glob(abs)
	if err != nil || len(matches) == 0 {
		return nil
	}

	showHidden := strings.HasPrefix(filepath.Base(pattern), ".")
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !showHidden && strings.HasPrefix(filepath.Base(m), ".") {
			continue
		}
		if !filepath.IsAbs(pattern) {
			m = strings.TrimPrefix(m, wrkdir+string(filepath.Separator))
		}
		out = append(out, m)
	}
	return out
}
