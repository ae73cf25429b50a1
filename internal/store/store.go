// Package store provides read-only access to the host application's note
// database and its link table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/models"
)

// Verify *DB satisfies backlinks.Reader at compile time.
var _ backlinks.Reader = (*DB)(nil)

// DefaultLinksTable is the link table of current store schema versions.
const DefaultLinksTable = "Z_7LINKEDNOTES"

// LinksTablePattern matches valid link table names. The numeric part
// changes between schema versions of the host application.
var LinksTablePattern = regexp.MustCompile(`^Z_[0-9]+LINKEDNOTES$`)

const noteColumns = `
	n.Z_PK                                          AS id,
	COALESCE(n.ZUNIQUEIDENTIFIER, '')               AS uid,
	COALESCE(n.ZTITLE, '')                          AS title,
	COALESCE(n.ZTEXT, '')                           AS text,
	CAST(COALESCE(n.ZMODIFICATIONDATE, 0) AS REAL)  AS modified,
	CAST(COALESCE(n.ZCREATIONDATE, 0) AS REAL)      AS created`

// DB is a read-only handle on the note store.
type DB struct {
	conn       *sql.DB
	linkingTo  map[models.LinkOrder]string
	linkedFrom string
}

// Open prepares a read-only handle on the store at path. No data is read
// until the first query. linksTable names the note-to-note link table; an
// empty value selects DefaultLinksTable.
func Open(path, linksTable string, busyTimeout time.Duration) (*DB, error) {
	if linksTable == "" {
		linksTable = DefaultLinksTable
	}
	if !LinksTablePattern.MatchString(linksTable) {
		return nil, fmt.Errorf("store: invalid links table %q", linksTable)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: %w: %w", apperr.ErrStoreUnavailable, err)
	}

	dsn, err := readOnlyDSN(path, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrap("open db", err)
	}

	return &DB{
		conn: conn,
		linkingTo: map[models.LinkOrder]string{
			models.OrderModified: linkingToQuery(linksTable, "modified"),
			models.OrderCreated:  linkingToQuery(linksTable, "created"),
		},
		linkedFrom: linkedFromQuery(linksTable),
	}, nil
}

func readOnlyDSN(path string, busyTimeout time.Duration) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("mode", "ro")
	if busyTimeout > 0 {
		q.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}

// linkColumns returns the source and target columns of a link table. Both
// share the table's entity prefix: Z_5LINKEDNOTES holds Z_5LINKEDBYNOTES and
// Z_5LINKEDNOTES.
func linkColumns(table string) (source, target string) {
	prefix := strings.TrimSuffix(table, "LINKEDNOTES")
	return prefix + "LINKEDBYNOTES", prefix + "LINKEDNOTES"
}

func linkingToQuery(table, orderBy string) string {
	source, target := linkColumns(table)
	return fmt.Sprintf(`
		SELECT DISTINCT %s
		  FROM %s AS l
		  JOIN ZSFNOTE AS n ON n.Z_PK = l.%s
		 WHERE l.%s = ?
		   AND n.ZTRASHED = 0
		 ORDER BY %s ASC, id ASC`, noteColumns, table, source, target, orderBy)
}

func linkedFromQuery(table string) string {
	source, target := linkColumns(table)
	return fmt.Sprintf(`
		SELECT DISTINCT %s
		  FROM %s AS l
		  JOIN ZSFNOTE AS n ON n.Z_PK = l.%s
		 WHERE l.%s = ?
		   AND n.ZTRASHED = 0
		 ORDER BY created ASC, id ASC`, noteColumns, table, target, source)
}

// Ping checks that the store is readable and has the expected schema.
func (db *DB) Ping(ctx context.Context) error {
	var id int64
	err := db.conn.QueryRowContext(ctx, `SELECT Z_PK FROM ZSFNOTE LIMIT 1`).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrap("ping", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// AllNotes returns every non-trashed note, highest id first.
func (db *DB) AllNotes(ctx context.Context) ([]models.Note, error) {
	q := `SELECT ` + noteColumns + ` FROM ZSFNOTE AS n WHERE n.ZTRASHED = 0 ORDER BY n.Z_PK DESC`
	return db.query(ctx, "all notes", q)
}

// NotesLinkingTo returns the distinct non-trashed notes whose text links to
// the note id, oldest first by the given order.
func (db *DB) NotesLinkingTo(ctx context.Context, id int64, order models.LinkOrder) ([]models.Note, error) {
	q, ok := db.linkingTo[order]
	if !ok {
		return nil, fmt.Errorf("store: unknown link order %q", order)
	}
	return db.query(ctx, "notes linking to", q, id)
}

// NotesLinkedFrom returns the distinct non-trashed notes that note id links
// to, in ascending creation order.
func (db *DB) NotesLinkedFrom(ctx context.Context, id int64) ([]models.Note, error) {
	return db.query(ctx, "notes linked from", db.linkedFrom, id)
}

func (db *DB) query(ctx context.Context, op, q string, args ...any) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.UID, &n.Title, &n.Text, &n.Modified, &n.Created); err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// unavailable lists the SQLite result codes meaning the file cannot be read
// right now. Schema errors are not among them.
var unavailable = map[sqlite3.ErrNo]struct{}{
	sqlite3.ErrBusy:     {},
	sqlite3.ErrLocked:   {},
	sqlite3.ErrCantOpen: {},
	sqlite3.ErrNotADB:   {},
	sqlite3.ErrCorrupt:  {},
	sqlite3.ErrIoErr:    {},
	sqlite3.ErrPerm:     {},
	sqlite3.ErrAuth:     {},
}

// wrap annotates err with the operation and classifies SQLite availability
// failures (busy, locked, unreadable) as ErrStoreUnavailable.
func wrap(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		if _, ok := unavailable[se.Code]; ok {
			return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrStoreUnavailable, err)
		}
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
