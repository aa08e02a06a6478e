package parser

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a ParserError.
type ErrorCode int

const (
	// BadToken: the input contains something the grammar does not know.
	BadToken ErrorCode = iota
	// UnclosedQuote: a quote was opened and never closed.
	UnclosedQuote
	// UnexpectedToken: a known token in the wrong place.
	UnexpectedToken
	// Incomplete: the input ends in the middle of a statement.
	Incomplete
	// BadValue: a builtin got an invalid argument.
	BadValue
)

func (c ErrorCode) String() string {
	switch c {
	case BadToken:
		return "bad token"
	case UnclosedQuote:
		return "unclosed quote"
	case UnexpectedToken:
		return "syntax error"
	case Incomplete:
		return "incomplete input"
	case BadValue:
		return "bad value"
	default:
		return fmt.Sprintf("parser error %d", int(c))
	}
}

// ParserError is returned by Parse and ParseBuiltin.
type ParserError struct {
	Code    ErrorCode
	Message string
}

func newError(code ErrorCode, format string, args ...any) *ParserError {
	return &ParserError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ParserError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NeedsMore reports whether err means the input stopped too early and more
// lines could complete it.
func NeedsMore(err error) bool {
	var pe *ParserError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == Incomplete || pe.Code == UnclosedQuote
}
