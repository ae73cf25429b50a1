// Package writer hands replacement note text to the host application through
// its x-callback URL scheme.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/starford/bearlinks/internal/backlinks"
)

// Defaults for the host application launcher.
const (
	DefaultCommand     = "open"
	DefaultBaseURL     = "bear://x-callback-url/add-text"
	DefaultSettleDelay = 200 * time.Millisecond
)

// DefaultArgs keeps the host application in the background.
var DefaultArgs = []string{"-g"}

var (
	_ backlinks.Writer = (*Bear)(nil)
	_ backlinks.Writer = (*Dispatcher)(nil)
	_ backlinks.Writer = (*LogWriter)(nil)
)

// fixedParams are sent with every update so the host application replaces
// the whole note silently and never touches trashed state or timestamps.
var fixedParams = []string{
	"mode=replace_all",
	"open_note=no",
	"exclude_trashed=no",
	"new_window=no",
	"show_window=no",
	"edit=no",
	"timestamp=no",
}

// UpdateURL builds the URL replacing the full text of note uid.
func UpdateURL(baseURL, uid, text string) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("?id=")
	b.WriteString(escape(uid))
	for _, p := range fixedParams {
		b.WriteByte('&')
		b.WriteString(p)
	}
	b.WriteString("&text=")
	b.WriteString(escape(text))
	return b.String()
}

// escape percent-encodes s, spaces included, as the host application does
// not decode '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Runner launches an external command and waits for the launcher to exit.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Option configures a Bear writer.
type Option func(*Bear)

// WithCommand sets the launcher command and its leading arguments.
func WithCommand(name string, args ...string) Option {
	return func(b *Bear) {
		if name != "" {
			b.command = name
			b.args = args
		}
	}
}

// WithBaseURL sets the x-callback endpoint.
func WithBaseURL(u string) Option {
	return func(b *Bear) {
		if u != "" {
			b.baseURL = u
		}
	}
}

// WithSettleDelay sets the pause after each launch.
func WithSettleDelay(d time.Duration) Option {
	return func(b *Bear) {
		b.settle = d
	}
}

// WithRunner replaces the process launcher.
func WithRunner(r Runner) Option {
	return func(b *Bear) {
		if r != nil {
			b.run = r
		}
	}
}

// Bear updates notes by launching the host application's URL handler. It is
// fire-and-forget: a nil error only means the launcher ran, not that the
// note was changed.
type Bear struct {
	command string
	args    []string
	baseURL string
	settle  time.Duration
	run     Runner
}

// NewBear creates a Bear writer.
func NewBear(opts ...Option) *Bear {
	b := &Bear{
		command: DefaultCommand,
		args:    DefaultArgs,
		baseURL: DefaultBaseURL,
		settle:  DefaultSettleDelay,
		run:     execRunner,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Update launches the update for uid, then waits the settle delay.
func (b *Bear) Update(ctx context.Context, uid, text string) error {
	args := make([]string, 0, len(b.args)+1)
	args = append(args, b.args...)
	args = append(args, UpdateURL(b.baseURL, uid, text))

	if err := b.run(ctx, b.command, args...); err != nil {
		return fmt.Errorf("writer: launch %s for %s: %w", b.command, uid, err)
	}
	return sleep(ctx, b.settle)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LogWriter logs updates instead of performing them.
type LogWriter struct {
	logger *slog.Logger
}

// NewLogWriter creates a LogWriter. A nil logger uses slog.Default.
func NewLogWriter(logger *slog.Logger) *LogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWriter{logger: logger}
}

// Update logs the update that would be sent.
func (w *LogWriter) Update(_ context.Context, uid, text string) error {
	w.logger.Info("dry run: update skipped", slog.String("uid", uid), slog.Int("bytes", len(text)))
	return nil
}
