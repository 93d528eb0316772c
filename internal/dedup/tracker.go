// Package dedup tracks identifiers already present at the destination.
package dedup

import "sync"

// Tracker is the set of identifiers known to exist at the destination,
// either loaded up front or recorded during the current run. It is safe for
// concurrent use.
type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// Contains reports whether id is known.
func (t *Tracker) Contains(id string) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// MarkImported records id as present.
func (t *Tracker) MarkImported(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = struct{}{}
}

// BulkLoad records every non-empty id.
func (t *Tracker) BulkLoad(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if id != "" {
			t.ids[id] = struct{}{}
		}
	}
}

// Claim marks id and reports whether it was new. Two callers racing on the
// same id see exactly one true.
func (t *Tracker) Claim(id string) bool {
	if id == "" {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ids[id]; ok {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// Release forgets an id previously claimed by a submission that failed.
func (t *Tracker) Release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, id)
}

// Len returns the number of known identifiers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
