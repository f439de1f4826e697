package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"placepulse/internal/index"
)

// ErrDuplicateObservation is returned when an (keyword, entity, date)
// snapshot has already been recorded.
var ErrDuplicateObservation = errors.New("observation already recorded for keyword, entity and date")

// ErrInvalidObservation is returned when a snapshot fails basic validation
var ErrInvalidObservation = errors.New("observation is missing required fields")

type observationKey struct {
	keyword  string
	entityID string
	date     time.Time
}

// ObservationLog is the append-only record of ingested oracle snapshots.
// Entries are immutable once appended and uniquely keyed by
// (keyword, entity, date); corrections arrive as new observations on later
// dates, never as updates.
type ObservationLog struct {
	mu      sync.RWMutex
	byKey   map[observationKey]struct{}
	entries []index.Observation
}

// NewObservationLog creates an empty observation log
func NewObservationLog() *ObservationLog {
	return &ObservationLog{byKey: make(map[observationKey]struct{})}
}

// Append records one observation. Duplicate (keyword, entity, date) keys
// are rejected with ErrDuplicateObservation.
func (l *ObservationLog) Append(obs index.Observation) error {
	if !obs.IsValid() {
		return ErrInvalidObservation
	}
	key := observationKey{
		keyword:  obs.Keyword,
		entityID: obs.EntityID,
		date:     obs.Date.UTC().Truncate(24 * time.Hour),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byKey[key]; exists {
		return ErrDuplicateObservation
	}
	l.byKey[key] = struct{}{}
	l.entries = append(l.entries, obs)
	return nil
}

// AppendBatch records a full listing snapshot, skipping entries already
// present. Returns the number of observations actually appended.
func (l *ObservationLog) AppendBatch(observations []index.Observation) (int, error) {
	appended := 0
	for _, obs := range observations {
		err := l.Append(obs)
		if errors.Is(err, ErrDuplicateObservation) {
			continue
		}
		if err != nil {
			return appended, err
		}
		appended++
	}
	return appended, nil
}

// ByKeyword returns all observations for a keyword since the cutoff,
// ordered by date. A zero cutoff returns the full history.
func (l *ObservationLog) ByKeyword(keyword string, since time.Time) []index.Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []index.Observation
	for _, obs := range l.entries {
		if obs.Keyword != keyword {
			continue
		}
		if !since.IsZero() && obs.Date.Before(since) {
			continue
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Latest returns the most recent observation for one (keyword, entity) pair
func (l *ObservationLog) Latest(keyword, entityID string) (index.Observation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best index.Observation
	found := false
	for _, obs := range l.entries {
		if obs.Keyword != keyword || obs.EntityID != entityID {
			continue
		}
		if !found || obs.Date.After(best.Date) {
			best = obs
			found = true
		}
	}
	return best, found
}

// LatestListing reconstructs the most recent full listing for a keyword:
// for every entity ever seen under the keyword, its latest observation,
// ordered by rank.
func (l *ObservationLog) LatestListing(keyword string) []index.Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	latest := make(map[string]index.Observation)
	for _, obs := range l.entries {
		if obs.Keyword != keyword {
			continue
		}
		if cur, ok := latest[obs.EntityID]; !ok || obs.Date.After(cur.Date) {
			latest[obs.EntityID] = obs
		}
	}

	out := make([]index.Observation, 0, len(latest))
	for _, obs := range latest {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// At returns the observation for (keyword, entity) on the given date, if present
func (l *ObservationLog) At(keyword, entityID string, date time.Time) (index.Observation, bool) {
	day := date.UTC().Truncate(24 * time.Hour)

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, obs := range l.entries {
		if obs.Keyword == keyword && obs.EntityID == entityID &&
			obs.Date.UTC().Truncate(24*time.Hour).Equal(day) {
			return obs, true
		}
	}
	return index.Observation{}, false
}

// Index2Range returns the ever-observed index2 support for a keyword
func (l *ObservationLog) Index2Range(keyword string) index.Index2Range {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var r index.Index2Range
	seen := false
	for _, obs := range l.entries {
		if obs.Keyword != keyword {
			continue
		}
		if !seen {
			r.Min, r.Max = obs.Index2, obs.Index2
			seen = true
			continue
		}
		if obs.Index2 < r.Min {
			r.Min = obs.Index2
		}
		if obs.Index2 > r.Max {
			r.Max = obs.Index2
		}
	}
	return r
}

// AllTriples returns every (index1, index2, index3) sample in the log,
// pooled across keywords, for the global polynomial fit.
func (l *ObservationLog) AllTriples() []index.Index3Triple {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]index.Index3Triple, 0, len(l.entries))
	for _, obs := range l.entries {
		out = append(out, index.Index3Triple{
			Index1: obs.Index1,
			Index2: obs.Index2,
			Index3: obs.Index3,
		})
	}
	return out
}

// Keywords returns every keyword present in the log
func (l *ObservationLog) Keywords() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, obs := range l.entries {
		if _, ok := seen[obs.Keyword]; ok {
			continue
		}
		seen[obs.Keyword] = struct{}{}
		out = append(out, obs.Keyword)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of stored observations
func (l *ObservationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
