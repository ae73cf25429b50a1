package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/backup"
	"github.com/starford/bearlinks/internal/models"
	"github.com/starford/bearlinks/internal/testutil"
)

type recordingWriter struct {
	mu      sync.Mutex
	updates map[string]string
}

func (w *recordingWriter) Update(_ context.Context, uid, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.updates == nil {
		w.updates = map[string]string{}
	}
	w.updates[uid] = text
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.updates)
}

func testConfig(t *testing.T) (*Config, *testutil.BearDB) {
	t.Helper()
	b := testutil.NewBearDB(t)
	alpha := b.AddNote(models.Note{Title: "Alpha", UID: "A", Text: "Hello world", Modified: 10, Created: 1})
	beta := b.AddNote(models.Note{Title: "Beta", UID: "B", Text: "See [[Alpha]]", Modified: 20, Created: 2})
	b.Link(beta, alpha)

	cfg := NewDefaultConfig()
	cfg.Store.Path = b.Path
	cfg.Store.BusyTimeout = time.Second
	cfg.Backup.Enabled = false
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache", "mod_dates.sqlite")
	cfg.Writer.SettleDelay = 0
	return cfg, b
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background(), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRun_Sync(t *testing.T) {
	cfg, b := testConfig(t)
	cfg.Backup.Enabled = true
	cfg.Cache.Enabled = true
	w := &recordingWriter{}

	err := Run(context.Background(),
		WithConfig(cfg),
		WithWriter(w),
		WithLogOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.updates["A"] != "Hello world\n\n---\n### Backlinks\n- [[Beta]]" {
		t.Errorf("updates = %v", w.updates)
	}
	if backups, _ := backup.List(b.Path); len(backups) != 1 {
		t.Errorf("backups = %v", backups)
	}
	if _, err := os.Stat(cfg.Cache.Path); err != nil {
		t.Errorf("cache not created: %v", err)
	}
}

func TestRun_DryRunLogsUpdates(t *testing.T) {
	cfg, b := testConfig(t)
	cfg.Backup.Enabled = true
	cfg.App.LogFormat = LogFormatText
	var logs bytes.Buffer

	err := Run(context.Background(),
		WithConfig(cfg),
		WithDryRun(true),
		WithLogOutput(&logs),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(logs.String(), "dry run: update skipped") || !strings.Contains(logs.String(), "uid=A") {
		t.Errorf("logs = %s", logs.String())
	}
	if backups, _ := backup.List(b.Path); len(backups) != 0 {
		t.Errorf("dry run created backups: %v", backups)
	}
}

func TestRun_Strip(t *testing.T) {
	cfg, b := testConfig(t)
	b.SetText("B", "See [[Alpha]]\n\n---\n### Backlinks\n- [[Gone]]", 30)
	w := &recordingWriter{}

	err := Run(context.Background(),
		WithConfig(cfg),
		WithCommand(CommandStrip),
		WithWriter(w),
		WithLogOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w.updates) != 1 || w.updates["B"] != "See [[Alpha]]" {
		t.Errorf("updates = %v", w.updates)
	}
}

func TestRun_SnapshotRequiresCache(t *testing.T) {
	cfg, _ := testConfig(t)
	opts := []Option{WithConfig(cfg), WithCommand(CommandSnapshot), WithWriter(&recordingWriter{}), WithLogOutput(io.Discard)}

	if err := Run(context.Background(), opts...); err == nil {
		t.Fatal("snapshot without cache should fail")
	}

	cfg.Cache.Enabled = true
	if err := Run(context.Background(), opts...); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_CorruptCacheIsReplaced(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Cache.Enabled = true
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Cache.Path, []byte("not a database, just some text that is long enough"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := &recordingWriter{}

	err := Run(context.Background(), WithConfig(cfg), WithWriter(w), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.count() != 1 {
		t.Errorf("updates = %v", w.updates)
	}
}

func TestRun_MissingStore(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Store.Path = filepath.Join(t.TempDir(), "missing.sqlite")

	err := Run(context.Background(), WithConfig(cfg), WithWriter(&recordingWriter{}), WithLogOutput(io.Discard))
	if !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	cfg, _ := testConfig(t)
	err := Run(context.Background(), WithConfig(cfg), WithCommand("bogus"), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_WatchStopsOnCancel(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Watch.Debounce = 50 * time.Millisecond
	w := &recordingWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, WithConfig(cfg), WithCommand(CommandWatch), WithWriter(w), WithLogOutput(io.Discard))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for w.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if w.count() != 1 {
		t.Fatalf("initial sync did not run: %v", w.updates)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
