// Package expr defines the parsed form of a command line: an Expression is
// an ordered list of statements the runner executes one after another.
//
// Words inside statements are kept exactly as typed (quotes, variables and
// substitutions intact). Expansion happens when the statement runs, so a
// loop body sees the current value of its variables on every iteration.
package expr

import "github.com/firefly-engineering/shellcore/internal/task"

// Expression is a sequence of statements.
type Expression struct {
	Statements []Statement
}

// New creates an expression from statements.
func New(statements ...Statement) *Expression {
	return &Expression{Statements: statements}
}

// Append adds statements at the end.
func (e *Expression) Append(statements ...Statement) {
	e.Statements = append(e.Statements, statements...)
}

// Len returns the number of statements, zero for a nil expression.
func (e *Expression) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Statements)
}

// Statement is one executable unit of an Expression.
type Statement interface {
	statement()
}

// Alias defines an alias. An empty Name lists every alias; an empty Command
// shows the alias called Name.
type Alias struct {
	Name    string
	Command string
}

// Break leaves the innermost loop.
type Break struct{}

// Cd changes the working directory. An empty Path means home.
type Cd struct {
	Path string
}

// Continue skips to the next iteration of the innermost loop.
type Continue struct{}

// Dirs reports the directory stack.
type Dirs struct{}

// Exec runs a task chain.
type Exec struct {
	Task *task.Task
}

// ExecHistory runs a command line from history. Index follows history.At.
type ExecHistory struct {
	Index int
}

// Exit terminates the shell. An empty Code exits with the last exit code.
type Exit struct {
	Code string
}

// Export stores the output of Value in the environment.
type Export struct {
	Key   string
	Value *Expression
}

// For sets Key to every whitespace separated word of Condition's output and
// runs Body each time.
type For struct {
	Key       string
	Condition *Expression
	Body      *Expression
}

// Function defines a function.
type Function struct {
	Name string
	Body *Expression
}

// History reports the recorded command lines.
type History struct{}

// If runs Then when Condition exits with 0, otherwise Else (may be nil).
type If struct {
	Condition *Expression
	Then      *Expression
	Else      *Expression
}

// PopdBack removes the bottom of the directory stack.
type PopdBack struct{}

// PopdFront removes the top of the directory stack and enters the new top.
type PopdFront struct{}

// Pushd enters Path and pushes it on the directory stack.
type Pushd struct {
	Path string
}

// Read waits for a line of user input and stores it in Key. MaxSize zero
// means no limit.
type Read struct {
	Key     string
	Prompt  string
	MaxSize int
}

// Replace replaces the shell process with Argv.
type Replace struct {
	Argv []string
}

// Return leaves the running function.
type Return struct {
	Code string
}

// Set stores the output of Value in the session storage.
type Set struct {
	Key   string
	Value *Expression
}

// Source runs every line of a file.
type Source struct {
	Path string
}

// Time runs Body and reports its duration.
type Time struct {
	Body *Expression
}

// Type reports how each name would be resolved.
type Type struct {
	Names []string
}

// Unalias removes an alias.
type Unalias struct {
	Name string
}

// Unset removes a variable from storage and environment.
type Unset struct {
	Key string
}

// Value expands Words and outputs them separated by a space.
type Value struct {
	Words []string
}

// While runs Body as long as Condition exits with 0.
type While struct {
	Condition *Expression
	Body      *Expression
}

func (Alias) statement()       {}
func (Break) statement()       {}
func (Cd) statement()          {}
func (Continue) statement()    {}
func (Dirs) statement()        {}
func (Exec) statement()        {}
func (ExecHistory) statement() {}
func (Exit) statement()        {}
func (Export) statement()      {}
func (For) statement()         {}
func (Function) statement()    {}
func (History) statement()     {}
func (If) statement()          {}
func (PopdBack) statement()    {}
func (PopdFront) statement()   {}
func (Pushd) statement()       {}
func (Read) statement()        {}
func (Replace) statement()     {}
func (Return) statement()      {}
func (Set) statement()         {}
func (Source) statement()      {}
func (Time) statement()        {}
func (Type) statement()        {}
func (Unalias) statement()     {}
func (Unset) statement()       {}
func (Value) statement()       {}
func (While) statement()       {}
