package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/firefly-engineering/shellcore/internal/expr"
)

type builtinFunc func(args []string) (*expr.Expression, error)

var builtins = map[string]builtinFunc{
	"alias":    parseAlias,
	"unalias":  parseUnalias,
	"cd":       parseCd,
	"dirs":     noArgs(expr.Dirs{}),
	"pushd":    parsePushd,
	"popd":     parsePopd,
	"export":   parseExport,
	"set":      parseSet,
	"unset":    parseUnset,
	"exit":     parseExit,
	"return":   parseReturn,
	"break":    noArgs(expr.Break{}),
	"continue": noArgs(expr.Continue{}),
	"source":   parseSource,
	".":        parseSource,
	"read":     parseRead,
	"history":  noArgs(expr.History{}),
	"type":     parseType,
	"exec":     parseExec,
}

// IsBuiltin reports whether name is handled by the shell itself.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Builtins returns the builtin command names, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseBuiltin converts argv into the statements of a builtin command. ok is
// false when argv[0] is not a builtin. Words stay raw; they are expanded when
// the statements run.
func ParseBuiltin(argv []string) (e *expr.Expression, ok bool, err error) {
	if len(argv) == 0 {
		return nil, false, nil
	}
	fn, found := builtins[argv[0]]
	if !found {
		return nil, false, nil
	}
	e, err = fn(argv[1:])
	if err != nil {
		if pe, isParserErr := err.(*ParserError); isParserErr {
			pe.Message = argv[0] + ": " + pe.Message
		}
		return nil, true, err
	}
	return e, true, nil
}

func noArgs(s expr.Statement) builtinFunc {
	return func(args []string) (*expr.Expression, error) {
		if len(args) > 0 {
			return nil, newError(BadValue, "too many arguments")
		}
		return expr.New(s), nil
	}
}

func atMostOne(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	default:
		return "", newError(BadValue, "too many arguments")
	}
}

func exactlyOne(args []string, what string) (string, error) {
	if len(args) == 0 {
		return "", newError(BadValue, "%s expected", what)
	}
	return atMostOne(args)
}

func parseAlias(args []string) (*expr.Expression, error) {
	if len(args) == 0 {
		return expr.New(expr.Alias{}), nil
	}
	e := expr.New()
	for _, arg := range args {
		name, command, _ := strings.Cut(arg, "=")
		if name == "" || strings.ContainsAny(name, " \t'\"$/") {
			return nil, newError(BadValue, "invalid alias name %q", name)
		}
		e.Append(expr.Alias{Name: name, Command: command})
	}
	return e, nil
}

func parseUnalias(args []string) (*expr.Expression, error) {
	if len(args) == 0 {
		return nil, newError(BadValue, "alias name expected")
	}
	e := expr.New()
	for _, name := range args {
		e.Append(expr.Unalias{Name: name})
	}
	return e, nil
}

func parseCd(args []string) (*expr.Expression, error) {
	path, err := atMostOne(args)
	if err != nil {
		return nil, err
	}
	return expr.New(expr.Cd{Path: path}), nil
}

func parsePushd(args []string) (*expr.Expression, error) {
	path, err := exactlyOne(args, "directory")
	if err != nil {
		return nil, err
	}
	return expr.New(expr.Pushd{Path: path}), nil
}

func parsePopd(args []string) (*expr.Expression, error) {
	arg, err := atMostOne(args)
	if err != nil {
		return nil, err
	}
	switch arg {
	case "", "+0":
		return expr.New(expr.PopdFront{}), nil
	case "-0":
		return expr.New(expr.PopdBack{}), nil
	default:
		return nil, newError(BadValue, "%s: invalid argument", arg)
	}
}

// assignmentsOf turns NAME=value (or NAME, meaning "$NAME") arguments into
// statements built by mk.
func assignmentsOf(args []string, mk func(key string, value *expr.Expression) expr.Statement) (*expr.Expression, error) {
	if len(args) == 0 {
		return nil, newError(BadValue, "NAME=value expected")
	}
	e := expr.New()
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !nameRegex.MatchString(key) {
			return nil, newError(BadValue, "%q: not a valid identifier", key)
		}
		if !found {
			value = "$" + key
		}
		e.Append(mk(key, expr.New(expr.Value{Words: []string{value}})))
	}
	return e, nil
}

func parseExport(args []string) (*expr.Expression, error) {
	return assignmentsOf(args, func(key string, value *expr.Expression) expr.Statement {
		return expr.Export{Key: key, Value: value}
	})
}

func parseSet(args []string) (*expr.Expression, error) {
	return assignmentsOf(args, func(key string, value *expr.Expression) expr.Statement {
		return expr.Set{Key: key, Value: value}
	})
}

func parseUnset(args []string) (*expr.Expression, error) {
	if len(args) == 0 {
		return nil, newError(BadValue, "variable name expected")
	}
	e := expr.New()
	for _, key := range args {
		if !nameRegex.MatchString(key) {
			return nil, newError(BadValue, "%q: not a valid identifier", key)
		}
		e.Append(expr.Unset{Key: key})
	}
	return e, nil
}

func parseExit(args []string) (*expr.Expression, error) {
	code, err := atMostOne(args)
	if err != nil {
		return nil, err
	}
	return expr.New(expr.Exit{Code: code}), nil
}

func parseReturn(args []string) (*expr.Expression, error) {
	code, err := atMostOne(args)
	if err != nil {
		return nil, err
	}
	return expr.New(expr.Return{Code: code}), nil
}

func parseSource(args []string) (*expr.Expression, error) {
	path, err := exactlyOne(args, "file name")
	if err != nil {
		return nil, err
	}
	return expr.New(expr.Source{Path: path}), nil
}

// parseRead accepts read [-p prompt] [-n nchars] [NAME].
func parseRead(args []string) (*expr.Expression, error) {
	s := expr.Read{Key: "REPLY"}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-p", "-n":
			if i+1 >= len(args) {
				return nil, newError(BadValue, "%s: option requires an argument", args[i])
			}
			if args[i] == "-p" {
				s.Prompt = args[i+1]
			} else {
				n, err := strconv.Atoi(args[i+1])
				if err != nil || n < 0 {
					return nil, newError(BadValue, "%s: invalid number", args[i+1])
				}
				s.MaxSize = n
			}
			i++
		default:
			if !nameRegex.MatchString(args[i]) {
				return nil, newError(BadValue, "%q: not a valid identifier", args[i])
			}
			s.Key = args[i]
		}
	}
	return expr.New(s), nil
}

func parseType(args []string) (*expr.Expression, error) {
	if len(args) == 0 {
		return nil, newError(BadValue, "name expected")
	}
	return expr.New(expr.Type{Names: append([]string(nil), args...)}), nil
}

func parseExec(args []string) (*expr.Expression, error) {
	if len(args) == 0 {
		return expr.New(), nil
	}
	return expr.New(expr.Replace{Argv: append([]string(nil), args...)}), nil
}
