package backlinks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/models"
)

// Reader is the read side of the note store.
type Reader interface {
	// AllNotes returns every non-trashed note, highest id first.
	AllNotes(ctx context.Context) ([]models.Note, error)
	// NotesLinkingTo returns the distinct non-trashed notes linking to id.
	NotesLinkingTo(ctx context.Context, id int64, order models.LinkOrder) ([]models.Note, error)
}

// Writer replaces the full text of the note identified by uid.
type Writer interface {
	Update(ctx context.Context, uid, text string) error
}

// SkipFilter reports whether a note is unchanged since the previous run.
type SkipFilter interface {
	Unchanged(n models.Note) bool
}

// Record is the reconciliation outcome for a single note.
type Record struct {
	Note        models.Note `json:"note"`
	OldBlock    string      `json:"old_block,omitempty"`
	OldTitles   []string    `json:"old_titles"`
	NewTitles   []string    `json:"new_titles"`
	NewBlock    string      `json:"new_block,omitempty"`
	NewText     string      `json:"-"`
	NeedsUpdate bool        `json:"needs_update"`
}

// Report summarizes one sweep over the store.
type Report struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Scanned       int           `json:"scanned"`
	Updated       int           `json:"updated"`
	Unchanged     int           `json:"unchanged"`
	Cached        int           `json:"cached"`
	Ambiguous     int           `json:"ambiguous"`
	Failed        int           `json:"failed"`
	UpdatedTitles []string      `json:"updated_titles"`

	// Snapshot maps uid to modification time for every note that was settled
	// in this run. Notes handed to the writer are left out so they are
	// evaluated again next time.
	Snapshot map[string]float64 `json:"-"`
}

// LogAttrs returns the report counters as log attributes.
func (r *Report) LogAttrs() []any {
	return []any{
		slog.Int("scanned", r.Scanned),
		slog.Int("updated", r.Updated),
		slog.Int("unchanged", r.Unchanged),
		slog.Int("cached", r.Cached),
		slog.Int("ambiguous", r.Ambiguous),
		slog.Int("failed", r.Failed),
		slog.Duration("duration", r.Duration),
	}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOrder selects the ordering of referencing notes.
func WithOrder(o models.LinkOrder) EngineOption {
	return func(e *Engine) {
		if o != "" {
			e.order = o
		}
	}
}

// WithSkipFilter enables skipping of notes unchanged since the last run.
func WithSkipFilter(f SkipFilter) EngineOption {
	return func(e *Engine) {
		e.filter = f
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithUpdateHook registers fn to be called after each note handed to the writer.
func WithUpdateHook(fn func(Record)) EngineOption {
	return func(e *Engine) {
		e.onUpdate = fn
	}
}

// Engine reconciles the backlinks blocks of every note in the store.
// A sweep is strictly sequential.
type Engine struct {
	reader   Reader
	writer   Writer
	parser   *Parser
	composer Composer
	order    models.LinkOrder
	filter   SkipFilter
	logger   *slog.Logger
	onUpdate func(Record)
}

// NewEngine creates an Engine.
func NewEngine(reader Reader, writer Writer, f Format, opts ...EngineOption) *Engine {
	p := NewParser(f)
	e := &Engine{
		reader:   reader,
		writer:   writer,
		parser:   p,
		composer: NewComposer(p.Format().Header),
		order:    models.OrderModified,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile computes the record for note given the notes currently linking
// to it, in display order. It performs no I/O.
func (e *Engine) Reconcile(note models.Note, linkers []models.Note) (Record, error) {
	parsed, err := e.parser.Parse(note.Text)
	if err != nil {
		return Record{Note: note}, err
	}

	titles := e.candidates(note, parsed.Content, linkers)
	rec := Record{
		Note:      note,
		OldBlock:  parsed.Block,
		OldTitles: nonNil(parsed.Titles),
		NewTitles: titles,
	}
	rec.NewBlock, _ = e.composer.Compose(titles)
	rec.NeedsUpdate = !slices.Equal(rec.OldTitles, titles)
	if rec.NeedsUpdate {
		rec.NewText = e.composer.Render(parsed.Content, titles)
	}
	return rec, nil
}

// candidates lists linker titles that belong in note's block: the linker's
// own content must reference note, and note's content must not already
// reference the linker.
func (e *Engine) candidates(note models.Note, content string, linkers []models.Note) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(linkers))
	for _, l := range linkers {
		if !References(e.parser.Content(l.Text), note.Title) {
			continue
		}
		if References(content, l.Title) {
			continue
		}
		if _, dup := seen[l.Title]; dup {
			continue
		}
		seen[l.Title] = struct{}{}
		out = append(out, l.Title)
	}
	return out
}

// Run sweeps every note, handing notes whose block changed to the writer.
// Store failures abort the sweep; per-note problems are logged and skipped.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	notes, err := e.reader.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("backlinks: load notes: %w", err)
	}

	rep := &Report{
		StartedAt:     start,
		UpdatedTitles: []string{},
		Snapshot:      make(map[string]float64, len(notes)),
	}
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			return rep, err
		}
		rep.Scanned++

		linkers, err := e.reader.NotesLinkingTo(ctx, n.ID, e.order)
		if err != nil {
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("backlinks: notes linking to %d: %w", n.ID, err)
		}

		if e.canSkip(n, linkers) {
			rep.Cached++
			rep.Snapshot[n.UID] = n.Modified
			continue
		}

		rec, err := e.Reconcile(n, linkers)
		if err != nil {
			if !errors.Is(err, apperr.ErrAmbiguousBacklinks) {
				rep.Duration = time.Since(start)
				return rep, err
			}
			rep.Ambiguous++
			rep.Snapshot[n.UID] = n.Modified
			e.logger.Warn("note skipped", slog.String("title", n.Title), slog.String("error", err.Error()))
			continue
		}

		if !rec.NeedsUpdate {
			rep.Unchanged++
			rep.Snapshot[n.UID] = n.Modified
			continue
		}

		if err := e.writer.Update(ctx, n.UID, rec.NewText); err != nil {
			rep.Failed++
			e.logger.Warn("note update failed", slog.String("title", n.Title), slog.String("error", err.Error()))
			continue
		}
		rep.Updated++
		rep.UpdatedTitles = append(rep.UpdatedTitles, n.Title)
		e.logger.Info("note updated",
			slog.String("title", n.Title),
			slog.String("uid", n.UID),
			slog.Int("backlinks", len(rec.NewTitles)))
		if e.onUpdate != nil {
			e.onUpdate(rec)
		}
	}

	rep.Duration = time.Since(start)
	return rep, nil
}

// canSkip reports whether n, every note linking to it, and the titles in its
// current block are all unchanged since the previous run.
func (e *Engine) canSkip(n models.Note, linkers []models.Note) bool {
	if e.filter == nil || !e.filter.Unchanged(n) {
		return false
	}
	current := make(map[string]struct{}, len(linkers))
	for _, l := range linkers {
		if !e.filter.Unchanged(l) {
			return false
		}
		current[l.Title] = struct{}{}
	}
	parsed, err := e.parser.Parse(n.Text)
	if err != nil {
		return false
	}
	for _, t := range parsed.Titles {
		if _, ok := current[t]; !ok {
			return false
		}
	}
	return true
}

// Plan returns the records of every note that a Run would rewrite, without
// writing anything. The skip filter is not consulted.
func (e *Engine) Plan(ctx context.Context) ([]Record, error) {
	notes, err := e.reader.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("backlinks: load notes: %w", err)
	}
	var out []Record
	for _, n := range notes {
		rec, err := e.evaluate(ctx, n)
		if errors.Is(err, apperr.ErrAmbiguousBacklinks) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.NeedsUpdate {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Preview returns the record for the note with the given title.
func (e *Engine) Preview(ctx context.Context, title string) (Record, error) {
	notes, err := e.reader.AllNotes(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("backlinks: load notes: %w", err)
	}
	for _, n := range notes {
		if n.Title == title {
			return e.evaluate(ctx, n)
		}
	}
	return Record{}, fmt.Errorf("backlinks: note %q: %w", title, apperr.ErrNotFound)
}

func (e *Engine) evaluate(ctx context.Context, n models.Note) (Record, error) {
	linkers, err := e.reader.NotesLinkingTo(ctx, n.ID, e.order)
	if err != nil {
		return Record{}, fmt.Errorf("backlinks: notes linking to %d: %w", n.ID, err)
	}
	return e.Reconcile(n, linkers)
}

// Strip removes the backlinks block from every note that has one.
func (e *Engine) Strip(ctx context.Context) (*Report, error) {
	start := time.Now()
	notes, err := e.reader.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("backlinks: load notes: %w", err)
	}

	rep := &Report{StartedAt: start, UpdatedTitles: []string{}}
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			return rep, err
		}
		rep.Scanned++

		parsed, err := e.parser.Parse(n.Text)
		if err != nil {
			rep.Ambiguous++
			e.logger.Warn("note skipped", slog.String("title", n.Title), slog.String("error", err.Error()))
			continue
		}
		if !parsed.HasBlock {
			rep.Unchanged++
			continue
		}
		if err := e.writer.Update(ctx, n.UID, parsed.Content); err != nil {
			rep.Failed++
			e.logger.Warn("note update failed", slog.String("title", n.Title), slog.String("error", err.Error()))
			continue
		}
		rep.Updated++
		rep.UpdatedTitles = append(rep.UpdatedTitles, n.Title)
		e.logger.Info("backlinks removed", slog.String("title", n.Title), slog.String("uid", n.UID))
	}

	rep.Duration = time.Since(start)
	return rep, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
