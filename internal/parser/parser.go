// Package parser turns command lines into expressions.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/firefly-engineering/shellcore/internal/expr"
	"github.com/firefly-engineering/shellcore/internal/task"
)

// Parser converts a command line into an expression.
type Parser interface {
	Parse(line string) (*expr.Expression, error)
}

// Bash parses the subset of the Bash grammar the shell supports.
type Bash struct{}

var _ Parser = Bash{}

var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse implements Parser. Errors are *ParserError; NeedsMore tells whether
// appending another line could make the input valid.
func (Bash) Parse(line string) (*expr.Expression, error) {
	tokens, err := lex(line)
	if err != nil {
		return nil, err
	}
	p := &bashParser{tokens: tokens}
	e, err := p.list()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, newError(UnexpectedToken, "unexpected %q", tok)
	}
	return e, nil
}

// Words splits line into words without expanding them, so quotes and
// substitutions are kept for a later expansion. Operators and redirections
// are rejected.
func Words(line string) ([]string, error) {
	tokens, err := lex(line)
	if err != nil {
		return nil, err
	}
	var words []string
	for _, tok := range tokens {
		switch tok.kind {
		case tokWord:
			words = append(words, tok.text)
		case tokEOF, tokNewline:
		default:
			return nil, newError(UnexpectedToken, "unexpected %q", tok)
		}
	}
	return words, nil
}

type bashParser struct {
	tokens []token
	pos    int
}

func (p *bashParser) peek() token {
	return p.tokens[p.pos]
}

func (p *bashParser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *bashParser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *bashParser) skipSeparators() {
	for {
		switch p.peek().kind {
		case tokSemi, tokNewline:
			p.next()
		default:
			return
		}
	}
}

func (p *bashParser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.next()
	}
}

// expectKeyword consumes kw. Running out of input means the statement is
// still open.
func (p *bashParser) expectKeyword(kw string) error {
	tok := p.peek()
	if tok.isKeyword(kw) {
		p.next()
		return nil
	}
	if tok.kind == tokEOF {
		return newError(Incomplete, "expected %q", kw)
	}
	return newError(UnexpectedToken, "expected %q, got %q", kw, tok)
}

// terminates reports whether tok closes the block being parsed.
func terminates(tok token, terminators []string) bool {
	if tok.kind == tokRBrace {
		for _, t := range terminators {
			if t == "}" {
				return true
			}
		}
		return false
	}
	for _, t := range terminators {
		if tok.isKeyword(t) {
			return true
		}
	}
	return false
}

// list parses statements until EOF or one of terminators at a command start.
func (p *bashParser) list(terminators ...string) (*expr.Expression, error) {
	e := expr.New()
	for {
		p.skipSeparators()
		tok := p.peek()
		if tok.kind == tokEOF {
			if len(terminators) > 0 {
				return nil, newError(Incomplete, "expected %q", strings.Join(terminators, " or "))
			}
			return e, nil
		}
		if terminates(tok, terminators) {
			return e, nil
		}

		statements, err := p.statement()
		if err != nil {
			return nil, err
		}
		e.Append(statements...)

		switch p.peek().kind {
		case tokSemi, tokNewline, tokEOF:
		case tokRBrace:
			if !terminates(p.peek(), terminators) {
				return nil, newError(UnexpectedToken, "unexpected \"}\"")
			}
		default:
			return nil, newError(UnexpectedToken, "unexpected %q", p.peek())
		}
	}
}

func (p *bashParser) statement() ([]expr.Statement, error) {
	tok := p.peek()
	if tok.kind == tokWord {
		switch tok.text {
		case "if":
			p.next()
			s, err := p.ifClause()
			return one(s, err)
		case "while":
			p.next()
			s, err := p.whileClause()
			return one(s, err)
		case "for":
			p.next()
			s, err := p.forClause()
			return one(s, err)
		case "function":
			p.next()
			name := p.next()
			if name.kind != tokWord {
				return nil, p.unexpected(name)
			}
			if p.peek().kind == tokLParen {
				if err := p.emptyParens(); err != nil {
					return nil, err
				}
			}
			s, err := p.functionBody(name.text)
			return one(s, err)
		case "time":
			p.next()
			body, err := p.statement()
			if err != nil {
				return nil, err
			}
			return []expr.Statement{expr.Time{Body: expr.New(body...)}}, nil
		case "then", "elif", "else", "fi", "do", "done", "in":
			return nil, newError(UnexpectedToken, "unexpected %q", tok)
		}

		if p.peekAt(1).kind == tokLParen {
			p.next()
			if err := p.emptyParens(); err != nil {
				return nil, err
			}
			s, err := p.functionBody(tok.text)
			return one(s, err)
		}
		if idx, ok, err := historyReference(tok.text); ok || err != nil {
			if err != nil {
				return nil, err
			}
			p.next()
			return []expr.Statement{expr.ExecHistory{Index: idx}}, nil
		}
		if assignments, ok := p.assignments(); ok {
			return assignments, nil
		}
	}

	t, err := p.chain()
	if err != nil {
		return nil, err
	}
	return []expr.Statement{expr.Exec{Task: t}}, nil
}

func one(s expr.Statement, err error) ([]expr.Statement, error) {
	if err != nil {
		return nil, err
	}
	return []expr.Statement{s}, nil
}

func (p *bashParser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return newError(Incomplete, "unexpected end of input")
	}
	return newError(UnexpectedToken, "unexpected %q", tok)
}

func (p *bashParser) emptyParens() error {
	if tok := p.next(); tok.kind != tokLParen {
		return p.unexpected(tok)
	}
	if tok := p.next(); tok.kind != tokRParen {
		return p.unexpected(tok)
	}
	return nil
}

func (p *bashParser) functionBody(name string) (expr.Statement, error) {
	if !nameRegex.MatchString(name) {
		return nil, newError(BadValue, "invalid function name %q", name)
	}
	p.skipNewlines()
	if tok := p.next(); tok.kind != tokLBrace {
		return nil, p.unexpected(tok)
	}
	body, err := p.list("}")
	if err != nil {
		return nil, err
	}
	p.next() // }
	return expr.Function{Name: name, Body: body}, nil
}

// ifClause parses the rest of an if statement; elif becomes a nested If in
// the else branch.
func (p *bashParser) ifClause() (expr.Statement, error) {
	cond, err := p.list("then")
	if err != nil {
		return nil, err
	}
	p.next()
	then, err := p.list("elif", "else", "fi")
	if err != nil {
		return nil, err
	}

	s := expr.If{Condition: cond, Then: then}
	switch kw := p.next(); kw.text {
	case "elif":
		nested, err := p.ifClause()
		if err != nil {
			return nil, err
		}
		s.Else = expr.New(nested)
		return s, nil
	case "else":
		s.Else, err = p.list("fi")
		if err != nil {
			return nil, err
		}
		p.next()
	}
	return s, nil
}

func (p *bashParser) whileClause() (expr.Statement, error) {
	cond, err := p.list("do")
	if err != nil {
		return nil, err
	}
	p.next()
	body, err := p.list("done")
	if err != nil {
		return nil, err
	}
	p.next()
	return expr.While{Condition: cond, Body: body}, nil
}

func (p *bashParser) forClause() (expr.Statement, error) {
	name := p.next()
	if name.kind != tokWord {
		return nil, p.unexpected(name)
	}
	if !nameRegex.MatchString(name.text) {
		return nil, newError(BadValue, "invalid loop variable %q", name.text)
	}
	p.skipNewlines()
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}

	var words []string
	for p.peek().kind == tokWord {
		words = append(words, p.next().text)
	}
	switch tok := p.peek(); tok.kind {
	case tokSemi, tokNewline:
		p.skipSeparators()
	default:
		return nil, p.unexpected(tok)
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.list("done")
	if err != nil {
		return nil, err
	}
	p.next()

	return expr.For{
		Key:       name.text,
		Condition: expr.New(expr.Value{Words: words}),
		Body:      body,
	}, nil
}

// assignments parses a command made only of NAME=value words.
func (p *bashParser) assignments() ([]expr.Statement, bool) {
	var statements []expr.Statement
	i := 0
	for ; p.peekAt(i).kind == tokWord; i++ {
		key, value, ok := splitAssignment(p.peekAt(i).text)
		if !ok {
			return nil, false
		}
		statements = append(statements, expr.Set{
			Key:   key,
			Value: expr.New(expr.Value{Words: []string{value}}),
		})
	}
	switch p.peekAt(i).kind {
	case tokSemi, tokNewline, tokEOF, tokRBrace:
	default:
		return nil, false
	}
	if len(statements) == 0 {
		return nil, false
	}
	p.pos += i
	return statements, true
}

func splitAssignment(word string) (key, value string, ok bool) {
	key, value, found := strings.Cut(word, "=")
	if !found || !nameRegex.MatchString(key) {
		return "", "", false
	}
	return key, value, true
}

// historyReference recognizes !!, !N and !-N.
func historyReference(word string) (int, bool, error) {
	if len(word) < 2 || word[0] != '!' {
		return 0, false, nil
	}
	if word == "!!" {
		return -1, true, nil
	}
	n, err := strconv.Atoi(word[1:])
	if err != nil {
		return 0, false, nil
	}
	if n == 0 {
		return 0, true, newError(BadValue, "%s: event not found", word)
	}
	return n, true, nil
}

// chain parses simple commands joined by |, || and &&.
func (p *bashParser) chain() (*task.Task, error) {
	head, err := p.command()
	if err != nil {
		return nil, err
	}
	for {
		var relation task.Relation
		switch p.peek().kind {
		case tokPipe:
			relation = task.Pipe
		case tokAnd:
			relation = task.And
		case tokOr:
			relation = task.Or
		default:
			return head, nil
		}
		p.next()
		p.skipNewlines()
		if p.peek().kind == tokEOF {
			return nil, newError(Incomplete, "command expected after %q", relation)
		}
		next, err := p.command()
		if err != nil {
			return nil, err
		}
		head.Chain(next, relation)
	}
}

// command parses words and redirections of one simple command.
func (p *bashParser) command() (*task.Task, error) {
	t := task.New(nil)
	for {
		tok := p.peek()
		switch tok.kind {
		case tokWord:
			p.next()
			t.Command = append(t.Command, tok.text)
		case tokOut, tokOutAppend, tokErr, tokErrAppend:
			p.next()
			target := p.next()
			if target.kind != tokWord {
				return nil, newError(UnexpectedToken, "missing file name after %q", tok)
			}
			mode := task.Truncate
			if tok.kind == tokOutAppend || tok.kind == tokErrAppend {
				mode = task.Append
			}
			if tok.kind == tokOut || tok.kind == tokOutAppend {
				t.Stdout = task.ToFile(target.text, mode)
			} else {
				t.Stderr = task.ToFile(target.text, mode)
			}
		case tokErrToOut:
			p.next()
			t.Stderr = task.ToStdout()
		case tokOutToErr:
			p.next()
			t.Stdout = task.ToStderr()
		default:
			if len(t.Command) == 0 {
				return nil, p.unexpected(tok)
			}
			return t, nil
		}
	}
}
