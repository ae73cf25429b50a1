// Package models defines the domain types for bearlinks.
package models

import (
	"math"
	"time"
)

// coreDataEpoch is the Unix time of 2001-01-01T00:00:00Z, the reference date
// of the timestamps stored by the note database.
const coreDataEpoch = 978307200

// Note is a single non-trashed note read from the store.
type Note struct {
	ID       int64   `json:"id"`
	UID      string  `json:"uid"`
	Title    string  `json:"title"`
	Text     string  `json:"-"`
	Modified float64 `json:"modified"`
	Created  float64 `json:"created"`
}

// ModifiedAt converts the store's modification timestamp to wall-clock time.
func (n Note) ModifiedAt() time.Time {
	return storeTime(n.Modified)
}

// CreatedAt converts the store's creation timestamp to wall-clock time.
func (n Note) CreatedAt() time.Time {
	return storeTime(n.Created)
}

func storeTime(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(coreDataEpoch+int64(sec), int64(frac*1e9)).UTC()
}

// LinkOrder selects how notes linking to a target are ordered.
type LinkOrder string

const (
	// OrderModified lists referencing notes by ascending modification time.
	OrderModified LinkOrder = "modified"
	// OrderCreated lists referencing notes by ascending creation time.
	OrderCreated LinkOrder = "created"
)
