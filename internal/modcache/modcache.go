// Package modcache persists note modification times between runs so that
// notes untouched since the previous run can be skipped.
package modcache

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS mod_dates (
	uid      TEXT PRIMARY KEY,
	modified REAL NOT NULL
);
`

// Verify Snapshot satisfies backlinks.SkipFilter at compile time.
var _ backlinks.SkipFilter = Snapshot(nil)

// Snapshot maps note uid to the modification time seen in a run.
type Snapshot map[string]float64

// Unchanged reports whether n carries the same modification time as when the
// snapshot was taken. Unknown notes are never unchanged.
func (s Snapshot) Unchanged(n models.Note) bool {
	v, ok := s[n.UID]
	return ok && v == n.Modified
}

// FromNotes builds a snapshot of every note in notes.
func FromNotes(notes []models.Note) Snapshot {
	s := make(Snapshot, len(notes))
	for _, n := range notes {
		s[n.UID] = n.Modified
	}
	return s
}

// Cache is the on-disk snapshot store.
type Cache struct {
	conn *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("modcache: open db: %w: %w", apperr.ErrCacheUnreadable, err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("modcache: apply schema: %w: %w", apperr.ErrCacheUnreadable, err)
	}
	return &Cache{conn: conn}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}

// Load returns the stored snapshot. An empty cache yields an empty snapshot.
func (c *Cache) Load(ctx context.Context) (Snapshot, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT uid, modified FROM mod_dates`)
	if err != nil {
		return nil, fmt.Errorf("modcache: load: %w: %w", apperr.ErrCacheUnreadable, err)
	}
	defer rows.Close()

	out := Snapshot{}
	for rows.Next() {
		var uid string
		var mod float64
		if err := rows.Scan(&uid, &mod); err != nil {
			return nil, fmt.Errorf("modcache: scan: %w: %w", apperr.ErrCacheUnreadable, err)
		}
		out[uid] = mod
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("modcache: load: %w: %w", apperr.ErrCacheUnreadable, err)
	}
	return out, nil
}

// Save replaces the stored snapshot with s within a transaction.
func (c *Cache) Save(ctx context.Context, s Snapshot) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("modcache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM mod_dates`); err != nil {
		return fmt.Errorf("modcache: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mod_dates (uid, modified) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("modcache: prepare insert: %w", err)
	}
	defer stmt.Close()
	for uid, mod := range s {
		if _, err := stmt.ExecContext(ctx, uid, mod); err != nil {
			return fmt.Errorf("modcache: insert %s: %w", uid, err)
		}
	}
	return tx.Commit()
}
