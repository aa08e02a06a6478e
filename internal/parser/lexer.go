package parser

import "strings"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokPipe
	tokOr
	tokAnd
	tokSemi
	tokNewline
	tokOut
	tokOutAppend
	tokErr
	tokErrAppend
	tokErrToOut
	tokOutToErr
	tokLParen
	tokRParen
	tokLBrace
	tokRBrace
)

var tokenNames = map[tokenKind]string{
	tokEOF:       "end of input",
	tokPipe:      "|",
	tokOr:        "||",
	tokAnd:       "&&",
	tokSemi:      ";",
	tokNewline:   "newline",
	tokOut:       ">",
	tokOutAppend: ">>",
	tokErr:       "2>",
	tokErrAppend: "2>>",
	tokErrToOut:  "2>&1",
	tokOutToErr:  ">&2",
	tokLParen:    "(",
	tokRParen:    ")",
	tokLBrace:    "{",
	tokRBrace:    "}",
}

type token struct {
	kind tokenKind
	text string
}

func (t token) String() string {
	if t.kind == tokWord {
		return t.text
	}
	return tokenNames[t.kind]
}

// isKeyword reports whether t is the unquoted word kw.
func (t token) isKeyword(kw string) bool {
	return t.kind == tokWord && t.text == kw
}

type lexer struct {
	src    []rune
	pos    int
	tokens []token
}

// lex splits line into tokens. Words keep their quotes, escapes and
// substitutions untouched.
func lex(line string) ([]token, error) {
	l := &lexer{src: []rune(line)}
	for {
		l.skipBlanks()
		if l.pos >= len(l.src) {
			break
		}
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.emit(tokNewline, "")
			l.pos++
		case c == '#':
			l.skipComment()
		case c == '|':
			if l.peek(1) == '|' {
				l.emit(tokOr, "")
				l.pos += 2
			} else {
				l.emit(tokPipe, "")
				l.pos++
			}
		case c == '&':
			if l.peek(1) != '&' {
				return nil, newError(BadToken, "background jobs are not supported")
			}
			l.emit(tokAnd, "")
			l.pos += 2
		case c == ';':
			l.emit(tokSemi, "")
			l.pos++
		case c == '(':
			l.emit(tokLParen, "")
			l.pos++
		case c == ')':
			l.emit(tokRParen, "")
			l.pos++
		case c == '<':
			return nil, newError(BadToken, "input redirection is not supported")
		case c == '>':
			if err := l.redirect(1); err != nil {
				return nil, err
			}
		case (c == '1' || c == '2') && l.peek(1) == '>':
			if err := l.redirect(int(c - '0')); err != nil {
				return nil, err
			}
		default:
			if err := l.word(); err != nil {
				return nil, err
			}
		}
	}
	l.emit(tokEOF, "")
	return l.tokens, nil
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text})
}

func (l *lexer) peek(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) skipBlanks() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\r') {
		l.pos++
	}
}

func (l *lexer) skipComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

// redirect lexes an output redirection starting at the optional fd digit.
func (l *lexer) redirect(fd int) error {
	if l.src[l.pos] != '>' {
		l.pos++
	}
	l.pos++ // '>'

	switch {
	case l.peek(0) == '>':
		l.pos++
		if fd == 2 {
			l.emit(tokErrAppend, "")
		} else {
			l.emit(tokOutAppend, "")
		}
	case l.peek(0) == '&':
		target := l.peek(1)
		l.pos += 2
		switch {
		case fd == 2 && target == '1':
			l.emit(tokErrToOut, "")
		case fd == 1 && target == '2':
			l.emit(tokOutToErr, "")
		case fd == 1 && target == '1', fd == 2 && target == '2':
			// Redirecting a stream to itself changes nothing.
		default:
			return newError(BadToken, "unsupported redirection %d>&%c", fd, target)
		}
	default:
		if fd == 2 {
			l.emit(tokErr, "")
		} else {
			l.emit(tokOut, "")
		}
	}
	return nil
}

func isWordBreak(c rune) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '|', '&', ';', '(', ')', '<', '>':
		return true
	}
	return false
}

func (l *lexer) word() error {
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isWordBreak(c) {
			break
		}
		switch c {
		case '\\':
			if l.pos+1 >= len(l.src) {
				return newError(Incomplete, "line continuation")
			}
			sb.WriteRune(c)
			sb.WriteRune(l.src[l.pos+1])
			l.pos += 2
		case '\'':
			end := l.indexFrom(l.pos+1, '\'')
			if end < 0 {
				return newError(UnclosedQuote, "missing closing '")
			}
			sb.WriteString(string(l.src[l.pos : end+1]))
			l.pos = end + 1
		case '"':
			end, err := l.doubleQuoteEnd(l.pos + 1)
			if err != nil {
				return err
			}
			sb.WriteString(string(l.src[l.pos : end+1]))
			l.pos = end + 1
		case '$':
			end, err := l.dollarEnd(l.pos)
			if err != nil {
				return err
			}
			sb.WriteString(string(l.src[l.pos:end]))
			l.pos = end
		default:
			sb.WriteRune(c)
			l.pos++
		}
	}

	text := sb.String()
	switch text {
	case "{":
		l.emit(tokLBrace, "")
	case "}":
		l.emit(tokRBrace, "")
	default:
		l.emit(tokWord, text)
	}
	return nil
}

func (l *lexer) indexFrom(start int, r rune) int {
	for i := start; i < len(l.src); i++ {
		if l.src[i] == r {
			return i
		}
	}
	return -1
}

// doubleQuoteEnd returns the index of the '"' closing a string that starts
// at start.
func (l *lexer) doubleQuoteEnd(start int) (int, error) {
	for i := start; i < len(l.src); i++ {
		switch l.src[i] {
		case '\\':
			i++
		case '$':
			end, err := l.dollarEnd(i)
			if err != nil {
				return 0, err
			}
			i = end - 1
		case '"':
			return i, nil
		}
	}
	return 0, newError(UnclosedQuote, `missing closing "`)
}

// dollarEnd returns the index just past a $-expression starting at start.
func (l *lexer) dollarEnd(start int) (int, error) {
	switch l.peekAt(start + 1) {
	case '(':
		return l.substitutionEnd(start + 2)
	case '{':
		end := l.indexFrom(start+2, '}')
		if end < 0 {
			return 0, newError(BadToken, "missing closing } in ${")
		}
		return end + 1, nil
	default:
		return start + 1, nil
	}
}

func (l *lexer) peekAt(i int) rune {
	if i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

// substitutionEnd finds the ')' closing a $( that ends just before start.
func (l *lexer) substitutionEnd(start int) (int, error) {
	depth := 1
	for i := start; i < len(l.src); i++ {
		switch l.src[i] {
		case '\\':
			i++
		case '\'':
			end := l.indexFrom(i+1, '\'')
			if end < 0 {
				return 0, newError(UnclosedQuote, "missing closing '")
			}
			i = end
		case '"':
			end, err := l.doubleQuoteEnd(i + 1)
			if err != nil {
				return 0, err
			}
			i = end
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, newError(Incomplete, "missing closing ) in $(")
}
