package internal

import (
	"io"

	"github.com/starford/bearlinks/internal/backlinks"
)

// Command selects what Run does.
type Command string

// Supported commands.
const (
	CommandSync     Command = "sync"
	CommandStrip    Command = "strip"
	CommandSnapshot Command = "snapshot"
	CommandWatch    Command = "watch"
	CommandMCP      Command = "mcp"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	command   Command
	dryRun    bool
	writer    backlinks.Writer
	logOutput io.Writer
	version   string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithCommand selects the command to run. Defaults to CommandSync.
func WithCommand(c Command) Option {
	return func(a *application) {
		a.command = c
	}
}

// WithDryRun logs updates instead of sending them, and skips the backup and
// cache writes.
func WithDryRun(dry bool) Option {
	return func(a *application) {
		a.dryRun = dry
	}
}

// WithWriter replaces the note writer built from the configuration.
func WithWriter(w backlinks.Writer) Option {
	return func(a *application) {
		a.writer = w
	}
}

// WithLogOutput sets the log destination. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
