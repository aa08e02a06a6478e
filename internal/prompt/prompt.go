// Package prompt renders the interactive prompt of the shell.
//
// A prompt template contains placeholders replaced at render time:
//
//	{user}  the user name
//	{host}  the short host name
//	{cwd}   the working directory, with the home directory shown as ~
//	{git}   " (branch)" inside a git work tree, empty elsewhere
//	{rc}    "[N] " when the last command failed, empty otherwise
package prompt

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Continuation is shown while a command line is incomplete.
const Continuation = "> "

// Info is what a prompt shows.
type Info struct {
	User     string
	Host     string
	Cwd      string
	Home     string
	ExitCode uint8
}

// Current returns the user and host of this process.
func Current() (userName, host string) {
	if u, err := user.Current(); err == nil {
		userName = u.Username
	} else {
		userName = os.Getenv("USER")
	}
	host, _ = os.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return userName, host
}

// Renderer expands prompt templates.
type Renderer struct {
	color bool

	userStyle lipgloss.Style
	cwdStyle  lipgloss.Style
	gitStyle  lipgloss.Style
	rcStyle   lipgloss.Style

	// branch looks up the git branch of a directory.
	branch func(dir string) string
}

// New creates a renderer. Without color the placeholders expand to plain
// text.
func New(color bool) *Renderer {
	return &Renderer{
		color:     color,
		userStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		cwdStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		gitStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		rcStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		branch:    GitBranch,
	}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color || text == "" {
		return text
	}
	return s.Render(text)
}

// Render expands template for info.
func (r *Renderer) Render(template string, info Info) string {
	var branch, rc string
	if strings.Contains(template, "{git}") {
		if name := r.branch(info.Cwd); name != "" {
			branch = " " + r.style(r.gitStyle, "("+name+")")
		}
	}
	if info.ExitCode != 0 {
		rc = r.style(r.rcStyle, fmt.Sprintf("[%d]", info.ExitCode)) + " "
	}

	replacer := strings.NewReplacer(
		"{user}", r.style(r.userStyle, info.User),
		"{host}", r.style(r.userStyle, info.Host),
		"{cwd}", r.style(r.cwdStyle, ShortenHome(info.Cwd, info.Home)),
		"{git}", branch,
		"{rc}", rc,
	)
	return replacer.Replace(template)
}

// ShortenHome replaces a leading home directory in path by ~.
func ShortenHome(path, home string) string {
	if home == "" || home == "/" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, err := filepath.Rel(home, path); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
		return "~/" + rel
	}
	return path
}

// GitBranch returns the branch checked out in the work tree containing dir,
// the abbreviated commit for a detached head, or "" outside a repository.
func GitBranch(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		// A branch without commits yet.
		head, err := repo.Reference(plumbing.HEAD, false)
		if err == nil && head.Type() == plumbing.SymbolicReference {
			return head.Target().Short()
		}
		return ""
	}
	if ref.Name().IsBranch() {
		return ref.Name().Short()
	}
	hash := ref.Hash().String()
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return hash
}
