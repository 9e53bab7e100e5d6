package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/echosec/advisory-pipeline/internal/models"
)

// Store persists advisory state history. Entries are append-only: a closed
// entry is never rewritten, and Transition is the only mutation.
type Store interface {
	// Current returns the open entry for an advisory, if one exists.
	Current(advisoryID string) (models.Entry, bool)
	// History returns all entries for an advisory, oldest first.
	History(advisoryID string) []models.Entry
	// AllCurrent returns every open entry, ordered by advisory id.
	AllCurrent() []models.Entry
	// At returns the entry whose validity interval covers t.
	At(advisoryID string, t time.Time) (models.Entry, bool)
	// Transition atomically closes the advisory's open entry (if any) at
	// closedAt and appends entry as the new open one.
	Transition(advisoryID string, closedAt time.Time, entry models.Entry)
	// Flush persists buffered state, where the backend has any.
	Flush() error
}

// MemoryStore keeps history in process memory. It is the backing for tests
// and the in-memory half of the file store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]models.Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]models.Entry)}
}

func (s *MemoryStore) Current(advisoryID string) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries[advisoryID] {
		if e.IsCurrent {
			return e, true
		}
	}
	return models.Entry{}, false
}

func (s *MemoryStore) History(advisoryID string) []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]models.Entry, len(s.entries[advisoryID]))
	copy(history, s.entries[advisoryID])
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].EffectiveFrom.Before(history[j].EffectiveFrom)
	})
	return history
}

func (s *MemoryStore) AllCurrent() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Entry
	for _, entries := range s.entries {
		for _, e := range entries {
			if e.IsCurrent {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdvisoryID < out[j].AdvisoryID })
	return out
}

func (s *MemoryStore) At(advisoryID string, t time.Time) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries[advisoryID] {
		if e.EffectiveFrom.After(t) {
			continue
		}
		if e.EffectiveTo == nil || e.EffectiveTo.After(t) {
			return e, true
		}
	}
	return models.Entry{}, false
}

func (s *MemoryStore) Transition(advisoryID string, closedAt time.Time, entry models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[advisoryID]
	for i := range entries {
		if entries[i].IsCurrent {
			closed := closedAt
			entries[i].IsCurrent = false
			entries[i].EffectiveTo = &closed
		}
	}
	s.entries[advisoryID] = append(entries, entry)
}

func (s *MemoryStore) Flush() error { return nil }

// snapshot returns all entries for serialization, grouped order stable.
func (s *MemoryStore) snapshot() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []models.Entry
	for _, id := range ids {
		out = append(out, s.entries[id]...)
	}
	return out
}

// load replaces the store contents; used by the file store on open.
func (s *MemoryStore) load(entries []models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]models.Entry)
	for _, e := range entries {
		s.entries[e.AdvisoryID] = append(s.entries[e.AdvisoryID], e)
	}
}
