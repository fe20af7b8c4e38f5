// Package versioning assigns semantic versions to published atlas snapshots.
// Every distinct Merkle root gets a new version; republishing an unchanged
// root is a no-op.
package versioning

import (
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// InitialVersion is assigned to the first published snapshot.
const InitialVersion = "1.0.0"

// Entry is one version in the ledger.
type Entry struct {
	Version   string    `json:"version"`
	Root      string    `json:"root"`
	LeafCount int       `json:"leaf_count"`
	Published time.Time `json:"published"`
}

// Ledger tracks published snapshot versions in order.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	clock   func() time.Time
}

// NewLedger creates an empty version ledger.
func NewLedger() *Ledger {
	return &Ledger{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Restore seeds the ledger from previously persisted entries, oldest first.
// Entries with unparseable versions are rejected.
func (l *Ledger) Restore(entries []Entry) error {
	for _, e := range entries {
		if _, err := semver.StrictNewVersion(e.Version); err != nil {
			return fmt.Errorf("restore version %q: %w", e.Version, err)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]Entry(nil), entries...)
	return nil
}

// Publish records a new root and returns its version entry. A root identical
// to the latest entry's returns that entry unchanged with created=false.
// Structural changes (a different root) bump the minor version; a leaf-count
// decrease is treated as a breaking change and bumps the major version.
func (l *Ledger) Publish(root string, leafCount int) (Entry, bool, error) {
	if root == "" {
		return Entry{}, false, fmt.Errorf("cannot publish an empty root")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		entry := Entry{
			Version:   InitialVersion,
			Root:      root,
			LeafCount: leafCount,
			Published: l.clock(),
		}
		l.entries = append(l.entries, entry)
		return entry, true, nil
	}

	latest := l.entries[len(l.entries)-1]
	if latest.Root == root {
		return latest, false, nil
	}

	current, err := semver.StrictNewVersion(latest.Version)
	if err != nil {
		return Entry{}, false, fmt.Errorf("parse current version %q: %w", latest.Version, err)
	}

	var next semver.Version
	if leafCount < latest.LeafCount {
		next = current.IncMajor()
	} else {
		next = current.IncMinor()
	}

	entry := Entry{
		Version:   next.String(),
		Root:      root,
		LeafCount: leafCount,
		Published: l.clock(),
	}
	l.entries = append(l.entries, entry)
	return entry, true, nil
}

// Latest returns the most recent entry, or false when nothing is published.
func (l *Ledger) Latest() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// History returns all entries oldest first.
func (l *Ledger) History() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
