// Package checksum computes content digests for backup verification.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// Writer accumulates a SHA-256 digest of everything written to it.
type Writer struct {
	h hash.Hash
}

// NewWriter creates an empty digest writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the hex-encoded digest of the bytes written so far.
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// File returns the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := NewWriter()
	if _, err := io.Copy(w, f); err != nil {
		return "", err
	}
	return w.Sum(), nil
}
