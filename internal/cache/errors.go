package cache

import "errors"

// Errors returned by every backend. Compare with errors.Is.
var (
	ErrNotFound = errors.New("cache: key not found")
	ErrClosed   = errors.New("cache: cache is closed")

	// ErrLockTimeout is returned by Locker when the key stays held past the wait.
	ErrLockTimeout = errors.New("cache: lock not acquired")
)
