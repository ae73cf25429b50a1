// Package testutil provides shared test helpers for building note databases
// shaped like the host application's store.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/bearlinks/internal/models"
)

// LinksTable is the default link table name used by fixtures.
const LinksTable = "Z_7LINKEDNOTES"

const notesSchemaSQL = `
CREATE TABLE ZSFNOTE (
	Z_PK              INTEGER PRIMARY KEY,
	ZUNIQUEIDENTIFIER VARCHAR,
	ZTITLE            VARCHAR,
	ZTEXT             VARCHAR,
	ZMODIFICATIONDATE TIMESTAMP,
	ZCREATIONDATE     TIMESTAMP,
	ZTRASHED          INTEGER DEFAULT 0
);
`

// BearDB is a writable fixture database.
type BearDB struct {
	Path string
	// Table is the link table, named as the store schema version names it.
	Table string

	t      *testing.T
	conn   *sql.DB
	source string
	target string
}

// NewBearDB creates an empty fixture database in a temporary directory.
func NewBearDB(t *testing.T) *BearDB {
	t.Helper()
	return NewBearDBWithLinks(t, LinksTable)
}

// NewBearDBWithLinks creates an empty fixture database whose link table is
// named table, for example "Z_5LINKEDNOTES".
func NewBearDBWithLinks(t *testing.T, table string) *BearDB {
	t.Helper()
	prefix := strings.TrimSuffix(table, "LINKEDNOTES")
	source, target := prefix+"LINKEDBYNOTES", prefix+"LINKEDNOTES"
	path := filepath.Join(t.TempDir(), "database.sqlite")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.Exec(notesSchemaSQL); err != nil {
		t.Fatalf("apply fixture schema: %v", err)
	}
	links := fmt.Sprintf(`CREATE TABLE %s (%s INTEGER, %s INTEGER, PRIMARY KEY (%s, %s))`,
		table, source, target, source, target)
	if _, err := conn.Exec(links); err != nil {
		t.Fatalf("create link table: %v", err)
	}
	return &BearDB{Path: path, Table: table, t: t, conn: conn, source: source, target: target}
}

// AddNote inserts n and returns its primary key. A zero ID lets SQLite pick one.
func (b *BearDB) AddNote(n models.Note) int64 {
	b.t.Helper()
	if n.UID == "" {
		n.UID = fmt.Sprintf("UID-%s", n.Title)
	}
	var id any
	if n.ID != 0 {
		id = n.ID
	}
	res, err := b.conn.Exec(`
		INSERT INTO ZSFNOTE (Z_PK, ZUNIQUEIDENTIFIER, ZTITLE, ZTEXT, ZMODIFICATIONDATE, ZCREATIONDATE, ZTRASHED)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, id, n.UID, n.Title, n.Text, n.Modified, n.Created)
	if err != nil {
		b.t.Fatalf("insert note %q: %v", n.Title, err)
	}
	pk, err := res.LastInsertId()
	if err != nil {
		b.t.Fatal(err)
	}
	return pk
}

// Link records that note from links to note to.
func (b *BearDB) Link(from, to int64) {
	b.t.Helper()
	q := fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)`, b.Table, b.source, b.target)
	if _, err := b.conn.Exec(q, from, to); err != nil {
		b.t.Fatalf("insert link %d -> %d: %v", from, to, err)
	}
}

// Trash marks a note as trashed.
func (b *BearDB) Trash(id int64) {
	b.t.Helper()
	if _, err := b.conn.Exec(`UPDATE ZSFNOTE SET ZTRASHED = 1 WHERE Z_PK = ?`, id); err != nil {
		b.t.Fatalf("trash note %d: %v", id, err)
	}
}

// SetText replaces a note's text and modification time, as the host
// application does after an edit.
func (b *BearDB) SetText(uid, text string, modified float64) {
	b.t.Helper()
	if _, err := b.conn.Exec(`UPDATE ZSFNOTE SET ZTEXT = ?, ZMODIFICATIONDATE = ? WHERE ZUNIQUEIDENTIFIER = ?`, text, modified, uid); err != nil {
		b.t.Fatalf("update note %s: %v", uid, err)
	}
}
