// Package noteservice coordinates backup, reconciliation, the modification
// cache and progress notifications for every entry point (CLI, watch mode,
// MCP tools).
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/backup"
	"github.com/starford/bearlinks/internal/modcache"
	"github.com/starford/bearlinks/internal/models"
)

// Store is the read side of the note store used by the service.
type Store interface {
	backlinks.Reader
	NotesLinkedFrom(ctx context.Context, id int64) ([]models.Note, error)
}

// Cache persists modification snapshots between runs.
type Cache interface {
	Load(ctx context.Context) (modcache.Snapshot, error)
	Save(ctx context.Context, s modcache.Snapshot) error
}

// Notifier receives progress events.
type Notifier interface {
	PublishNoteUpdated(title, uid string, backlinks int)
	PublishRunCompleted(report any)
}

// NoteLinks lists the notes linked with a note in both directions.
type NoteLinks struct {
	Title    string   `json:"title"`
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

// Status describes the most recent sweep.
type Status struct {
	Runs       int               `json:"runs"`
	LastRunAt  time.Time         `json:"last_run_at,omitzero"`
	LastReport *backlinks.Report `json:"last_report,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	// Backups lists the retained store backups, newest first.
	Backups []string `json:"backups,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the modification cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithBackup enables a backup of storePath before every writing run, keeping
// the newest keep copies (0 keeps all).
func WithBackup(storePath string, keep int) Option {
	return func(s *Service) {
		s.backupPath = storePath
		s.backupKeep = keep
	}
}

// WithDryRun disables backups and cache writes.
func WithDryRun(dry bool) Option {
	return func(s *Service) {
		s.dryRun = dry
	}
}

// WithOrder selects the ordering of referencing notes.
func WithOrder(o models.LinkOrder) Option {
	return func(s *Service) {
		if o != "" {
			s.order = o
		}
	}
}

// WithNotifier registers a progress listener.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs sweeps over the note store. Writing operations are
// serialized.
type Service struct {
	store    Store
	writer   backlinks.Writer
	format   backlinks.Format
	order    models.LinkOrder
	cache    Cache
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	dryRun   bool

	backupPath string
	backupKeep int

	runMu    sync.Mutex
	statusMu sync.RWMutex
	status   Status
}

// NewService creates a note service.
func NewService(store Store, writer backlinks.Writer, format backlinks.Format, opts ...Option) *Service {
	s := &Service{
		store:  store,
		writer: writer,
		format: format,
		order:  models.OrderModified,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) engine(opts ...backlinks.EngineOption) *backlinks.Engine {
	base := []backlinks.EngineOption{
		backlinks.WithOrder(s.order),
		backlinks.WithLogger(s.logger),
	}
	if s.notifier != nil {
		base = append(base, backlinks.WithUpdateHook(func(r backlinks.Record) {
			s.notifier.PublishNoteUpdated(r.Note.Title, r.Note.UID, len(r.NewTitles))
		}))
	}
	return backlinks.NewEngine(s.store, s.writer, s.format, append(base, opts...)...)
}

// Sync backs up the store, reconciles every note and records the
// modification snapshot.
func (s *Service) Sync(ctx context.Context) (*backlinks.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.backup(); err != nil {
		s.recordRun(nil, err)
		return nil, err
	}

	var opts []backlinks.EngineOption
	if snap := s.loadSnapshot(ctx); snap != nil {
		opts = append(opts, backlinks.WithSkipFilter(snap))
	}

	rep, err := s.engine(opts...).Run(ctx)
	s.recordRun(rep, err)
	if err != nil {
		return rep, err
	}

	if s.cache != nil && !s.dryRun {
		if err := s.cache.Save(ctx, modcache.Snapshot(rep.Snapshot)); err != nil {
			s.logger.Warn("cache save failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		s.notifier.PublishRunCompleted(rep)
	}
	s.logger.Info("Done", rep.LogAttrs()...)
	return rep, nil
}

// Strip backs up the store and removes the backlinks block from every note.
// The modification cache is cleared since every stripped note changes.
func (s *Service) Strip(ctx context.Context) (*backlinks.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.backup(); err != nil {
		return nil, err
	}
	rep, err := s.engine().Strip(ctx)
	if err != nil {
		return rep, err
	}
	if s.cache != nil && !s.dryRun {
		if err := s.cache.Save(ctx, modcache.Snapshot{}); err != nil {
			s.logger.Warn("cache clear failed", slog.String("error", err.Error()))
		}
	}
	s.logger.Info("Done", rep.LogAttrs()...)
	return rep, nil
}

// Snapshot records the current modification time of every note without
// reconciling anything. It returns the number of notes recorded.
func (s *Service) Snapshot(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, errors.New("noteservice: snapshot: cache not configured")
	}
	notes, err := s.store.AllNotes(ctx)
	if err != nil {
		return 0, fmt.Errorf("noteservice: snapshot: %w", err)
	}
	if s.dryRun {
		return len(notes), nil
	}
	if err := s.cache.Save(ctx, modcache.FromNotes(notes)); err != nil {
		return 0, fmt.Errorf("noteservice: snapshot: %w", err)
	}
	return len(notes), nil
}

// Plan lists every note a sync would rewrite.
func (s *Service) Plan(ctx context.Context) ([]backlinks.Record, error) {
	recs, err := s.engine().Plan(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []backlinks.Record{}
	}
	return recs, nil
}

// Preview reconciles a single note by title without writing.
func (s *Service) Preview(ctx context.Context, title string) (backlinks.Record, error) {
	return s.engine().Preview(ctx, title)
}

// Links returns the titles of notes linking to and linked from title.
func (s *Service) Links(ctx context.Context, title string) (*NoteLinks, error) {
	notes, err := s.store.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: links: %w", err)
	}
	idx := -1
	for i, n := range notes {
		if n.Title == title {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("noteservice: note %q: %w", title, apperr.ErrNotFound)
	}

	id := notes[idx].ID
	in, err := s.store.NotesLinkingTo(ctx, id, s.order)
	if err != nil {
		return nil, fmt.Errorf("noteservice: links: %w", err)
	}
	out, err := s.store.NotesLinkedFrom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("noteservice: links: %w", err)
	}
	return &NoteLinks{Title: title, Incoming: titles(in), Outgoing: titles(out)}, nil
}

// Status returns the outcome of the most recent sync.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Service) recordRun(rep *backlinks.Report, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Runs++
	s.status.LastRunAt = s.now()
	if err != nil {
		s.status.LastError = err.Error()
		return
	}
	s.status.LastError = ""
	s.status.LastReport = rep
}

func (s *Service) backup() error {
	if s.backupPath == "" || s.dryRun {
		return nil
	}
	res, err := backup.Create(s.backupPath, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("backup created", slog.String("path", res.Path), slog.String("checksum", res.Checksum))

	removed, err := backup.Prune(s.backupPath, s.backupKeep)
	if err != nil {
		s.logger.Warn("backup prune failed", slog.String("error", err.Error()))
	}
	for _, p := range removed {
		s.logger.Debug("backup pruned", slog.String("path", p))
	}

	kept, err := backup.List(s.backupPath)
	if err != nil {
		s.logger.Warn("backup list failed", slog.String("error", err.Error()))
		return nil
	}
	s.statusMu.Lock()
	s.status.Backups = kept
	s.statusMu.Unlock()
	return nil
}

// loadSnapshot returns the previous snapshot, or nil for a cold start.
func (s *Service) loadSnapshot(ctx context.Context) modcache.Snapshot {
	if s.cache == nil {
		return nil
	}
	snap, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn("cache unreadable, evaluating every note", slog.String("error", err.Error()))
		return nil
	}
	return snap
}

func titles(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Title
	}
	return out
}
