// Package backup takes timestamped copies of the note store before a run and
// prunes old copies.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/checksum"
)

// Layout is the timestamp layout embedded in backup file names.
const Layout = "02-01-2006-15-04-05"

// DefaultKeep is the number of backups retained by default.
const DefaultKeep = 10

// companions are the SQLite side files copied and pruned with the store.
var companions = []string{"-wal", "-shm"}

// digestFile re-reads a written copy for verification.
var digestFile = checksum.File

// Result describes a completed backup.
type Result struct {
	Path     string   `json:"path"`
	Files    []string `json:"files"`
	Checksum string   `json:"checksum"`
}

// Name returns the backup path for storePath taken at t:
// <dir>/<stem>_<DD-MM-YYYY-HH-MM-SS><ext>.
func Name(storePath string, t time.Time) string {
	dir, base := filepath.Split(storePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"_"+t.Format(Layout)+ext)
}

// Create copies storePath, and any -wal/-shm companions, next to it under a
// name stamped with now.
func Create(storePath string, now time.Time) (Result, error) {
	dst := Name(storePath, now)
	sum, err := copyFile(storePath, dst)
	if err != nil {
		return Result{}, fmt.Errorf("backup: copy %s: %w: %w", storePath, apperr.ErrBackupFailed, err)
	}

	res := Result{Path: dst, Files: []string{dst}, Checksum: sum}
	for _, suffix := range companions {
		src := storePath + suffix
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if _, err := copyFile(src, dst+suffix); err != nil {
			return res, fmt.Errorf("backup: copy %s: %w: %w", src, apperr.ErrBackupFailed, err)
		}
		res.Files = append(res.Files, dst+suffix)
	}
	return res, nil
}

// copyFile writes src to dst atomically: tmp file, fsync, verify, rename. It
// returns the digest of the copied bytes.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".bearlinks-backup-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	sum := checksum.NewWriter()
	if _, err := io.Copy(io.MultiWriter(tmp, sum), in); err != nil {
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp: %w", err)
	}
	written, err := digestFile(tmpName)
	if err != nil {
		return "", fmt.Errorf("verify: %w", err)
	}
	if written != sum.Sum() {
		return "", fmt.Errorf("verify: copy digest %s, source digest %s", written, sum.Sum())
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("rename: %w", err)
	}
	success = true
	return sum.Sum(), nil
}

type entry struct {
	path string
	at   time.Time
}

// List returns the backups of storePath, newest first.
func List(storePath string) ([]string, error) {
	entries, err := list(storePath)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}

func list(storePath string) ([]entry, error) {
	dir, base := filepath.Split(storePath)
	if dir == "" {
		dir = "."
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(stem) + `_(\d{2}-\d{2}-\d{4}-\d{2}-\d{2}-\d{2})` + regexp.QuoteMeta(ext) + `$`)

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", dir, err)
	}
	var out []entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		at, err := time.Parse(Layout, m[1])
		if err != nil {
			continue
		}
		out = append(out, entry{path: filepath.Join(dir, f.Name()), at: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.After(out[j].at) })
	return out, nil
}

// Prune removes all but the newest keep backups of storePath, with their
// companions. keep <= 0 keeps everything. It returns the removed backups.
func Prune(storePath string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := list(storePath)
	if err != nil {
		return nil, err
	}
	if len(entries) <= keep {
		return nil, nil
	}

	var removed []string
	for _, e := range entries[keep:] {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("backup: remove %s: %w", e.path, err)
		}
		for _, suffix := range companions {
			_ = os.Remove(e.path + suffix)
		}
		removed = append(removed, e.path)
	}
	return removed, nil
}
