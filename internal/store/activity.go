package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"placepulse/internal/index"
)

// ErrActivityNotFound is returned when no activity entry has the given id
var ErrActivityNotFound = errors.New("activity entry not found")

// ErrAlreadyResolved is returned when a lag resolution was already recorded
var ErrAlreadyResolved = errors.New("activity already resolved for lag")

// ErrInvalidLag is returned when a resolution targets a lag that is never resolved
var ErrInvalidLag = errors.New("lag is not a resolvable window")

// ActivityLog stores operator-declared activity entries and their lagged
// resolution snapshots. Resolutions are write-once per lag so repeated
// resolution passes stay idempotent.
type ActivityLog struct {
	mu      sync.RWMutex
	entries map[string]index.ActivityEntry
}

// NewActivityLog creates an empty activity log
func NewActivityLog() *ActivityLog {
	return &ActivityLog{entries: make(map[string]index.ActivityEntry)}
}

// Create stores a new activity entry under its id
func (l *ActivityLog) Create(entry index.ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.ID] = entry
}

// Get returns the entry with the given id
func (l *ActivityLog) Get(id string) (index.ActivityEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[id]
	if !ok {
		return index.ActivityEntry{}, ErrActivityNotFound
	}
	return entry, nil
}

// Resolve records the lagged snapshot for one entry. A lag that already
// carries a snapshot returns ErrAlreadyResolved and leaves the stored
// snapshot untouched.
func (l *ActivityLog) Resolve(id string, lag index.Lag, snap index.ResolutionSnapshot) error {
	if lag != index.LagOneDay && lag != index.LagSevenDays {
		return ErrInvalidLag
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok {
		return ErrActivityNotFound
	}

	switch lag {
	case index.LagOneDay:
		if entry.ResolutionD1 != nil {
			return ErrAlreadyResolved
		}
		entry.ResolutionD1 = &snap
	case index.LagSevenDays:
		if entry.ResolutionD7 != nil {
			return ErrAlreadyResolved
		}
		entry.ResolutionD7 = &snap
	}
	l.entries[id] = entry
	return nil
}

// PendingAt returns every entry with at least one unresolved lag whose
// window has elapsed by now, ordered by activity date.
func (l *ActivityLog) PendingAt(now time.Time) []index.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []index.ActivityEntry
	for _, entry := range l.entries {
		if lagDue(entry, index.LagOneDay, now) || lagDue(entry, index.LagSevenDays, now) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActivityDate.Before(out[j].ActivityDate)
	})
	return out
}

// lagDue reports whether the lag window has elapsed and is still unresolved
func lagDue(entry index.ActivityEntry, lag index.Lag, now time.Time) bool {
	if entry.Resolution(lag) != nil {
		return false
	}
	due := entry.ActivityDate.AddDate(0, 0, lag.Days())
	return !now.Before(due)
}

// Resolved returns every entry carrying a snapshot for the given lag
func (l *ActivityLog) Resolved(lag index.Lag) []index.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []index.ActivityEntry
	for _, entry := range l.entries {
		if entry.Resolution(lag) != nil {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActivityDate.Before(out[j].ActivityDate)
	})
	return out
}

// All returns a copy of every stored entry
func (l *ActivityLog) All() []index.ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]index.ActivityEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
