package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrAmbiguousBacklinks = errors.New("ambiguous backlinks region")
	ErrCacheUnreadable    = errors.New("cache unreadable")
	ErrBackupFailed       = errors.New("backup failed")
)
