package storage

import (
	"context"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// CacheSuffix is appended to a dataset's base path to name its cache file.
const CacheSuffix = ".preprocessed.sqlite"

// CachePath returns the cache file path for a dataset whose files share
// base, the path without format suffix.
func CachePath(base string) string {
	return base + CacheSuffix
}

// IsCachePath reports whether path names a cache file.
func IsCachePath(path string) bool {
	return strings.HasSuffix(path, CacheSuffix)
}

// Store persists preprocessed datasets so later sessions can skip
// resampling. Every call opens the underlying file, does its work and closes
// it again; no handle is held between calls.
type Store interface {
	// Exists reports whether the cache file is present.
	Exists() bool

	// Save writes the snapshot, replacing any previous content.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - snap: Dataset content; axes and every matrix must be populated
	//
	// Returns:
	//   - error: If the snapshot is inconsistent or the file cannot be written
	Save(ctx context.Context, snap *Snapshot) error

	// Load reads the snapshot.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - opts: Optional read settings (WithoutData)
	//
	// Returns:
	//   - snap: Stored content; matrices are nil when read WithoutData
	//   - error: If the file is missing or malformed
	Load(ctx context.Context, opts ...ReadOption) (*Snapshot, error)
}
