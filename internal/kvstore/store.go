// Package kvstore provides the process-wide durable key-value store that backs
// credentials and saved sessions. Stores enforce a byte quota over the sum of
// key and value lengths, mirroring the fixed budget of a browser local store,
// and report overflow with ErrQuotaExceeded so callers can degrade.
package kvstore

import "errors"

// DefaultQuota is the storage budget used when none is configured.
const DefaultQuota = 5 * 1024 * 1024

var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrClosed        = errors.New("store is closed")
)

// Store is a string key-value store. Every successful Set or Delete is durable
// when it returns. Writes are last-writer-wins.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	// Returns ErrQuotaExceeded if the write would exceed the quota; the
	// previous value is left untouched in that case.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys lists keys starting with prefix in lexical order.
	Keys(prefix string) ([]string, error)

	// Close releases resources.
	Close() error
}

// entrySize is the number of bytes an entry counts against the quota.
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
