// =============================================================================
// Storage Billing - Error Ledger
// =============================================================================
//
// Collects the failures raised while billing a run. Each failure is keyed by
// protocol, potential service, description, storage type and message; a
// repeat of a known key is dropped, so the ledger keeps first-seen order.
//
// =============================================================================

package billing

import (
	"sync"

	"github.com/ginjaninja78/storage-billing/internal/types"
)

// ledgerKey is the identity of a failure: the same failure reported again,
// from the same file or another one, collapses into the first entry.
type ledgerKey struct {
	protocol    string
	potential   string
	description string
	storageType string
	message     string
}

func keyOf(e types.ErrorEntry) ledgerKey {
	return ledgerKey{
		protocol:    e.Protocol,
		potential:   e.PotentialService,
		description: e.Description,
		storageType: e.StorageType,
		message:     e.Error,
	}
}

// Ledger is a deduplicated, insertion-ordered collection of billing failures.
// It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	seen    map[ledgerKey]struct{}
	entries []types.ErrorEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[ledgerKey]struct{})}
}

// Add records entry unless an entry with the same identity already exists.
// It reports whether the entry was added.
func (l *Ledger) Add(entry types.ErrorEntry) bool {
	key := keyOf(entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	l.entries = append(l.entries, entry)
	return true
}

// Entries returns a copy of the recorded entries in insertion order.
func (l *Ledger) Entries() []types.ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.ErrorEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Protocols returns the distinct non-blank raw protocols that failed, in
// first-failure order. This is the max aggregator's exclusion set.
func (l *Ledger) Protocols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, e := range l.entries {
		if e.Protocol == "" {
			continue
		}
		if _, ok := seen[e.Protocol]; ok {
			continue
		}
		seen[e.Protocol] = struct{}{}
		out = append(out, e.Protocol)
	}
	return out
}
