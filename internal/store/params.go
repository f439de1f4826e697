// Package store provides the in-memory data stores behind the calibration
// engine: the versioned parameter store, the append-only observation log,
// the activity log and the feature-significance table. All stores follow
// the same discipline: an RWMutex around immutable values that are swapped
// wholesale and copied out, so readers never observe a half-written record.
package store

import (
	"sync"
	"time"

	"placepulse/internal/index"
)

// versioned pairs a stored value with its monotonically increasing version
type versioned[T any] struct {
	value   T
	version uint64
}

// ParameterStore holds the current calibrated coefficients per keyword plus
// the single global index3 model. Writes replace the whole value; a write
// that carries an equivalent fit keeps the existing version so repeated
// calibration cycles over unchanged data stay idempotent.
type ParameterStore struct {
	mu       sync.RWMutex
	keywords map[string]versioned[index.KeywordParameters]
	global   versioned[index.GlobalIndex3Model]
}

// NewParameterStore creates an empty parameter store seeded with the
// default global model.
func NewParameterStore() *ParameterStore {
	return &ParameterStore{
		keywords: make(map[string]versioned[index.KeywordParameters]),
		global:   versioned[index.GlobalIndex3Model]{value: index.DefaultGlobalModel()},
	}
}

// Get returns the active parameters and version for a keyword. A keyword
// that was never calibrated returns an UNCALIBRATED zero-value, not an
// error.
func (s *ParameterStore) Get(keyword string) (index.KeywordParameters, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.keywords[keyword]
	if !ok {
		return index.KeywordParameters{
			Keyword: keyword,
			Status:  index.StatusUncalibrated,
		}, 0
	}
	return v.value, v.version
}

// Put atomically replaces the active parameter set and returns the new
// version. An equivalent fit (same coefficients, counts and status) only
// refreshes the calibration timestamp and keeps the version unchanged.
func (s *ParameterStore) Put(keyword string, params index.KeywordParameters) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.keywords[keyword]
	if ok && current.value.EquivalentTo(params) {
		refreshed := current.value
		refreshed.LastCalibratedAt = params.LastCalibratedAt
		s.keywords[keyword] = versioned[index.KeywordParameters]{
			value:   refreshed,
			version: current.version,
		}
		return current.version
	}

	next := current.version + 1
	s.keywords[keyword] = versioned[index.KeywordParameters]{value: params, version: next}
	return next
}

// GetGlobal returns the active global index3 model and its version
func (s *ParameterStore) GetGlobal() (index.GlobalIndex3Model, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global.value, s.global.version
}

// PutGlobal atomically replaces the global model
func (s *ParameterStore) PutGlobal(model index.GlobalIndex3Model) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = versioned[index.GlobalIndex3Model]{value: model, version: s.global.version + 1}
	return s.global.version
}

// Keywords returns every keyword holding stored parameters
func (s *ParameterStore) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.keywords))
	for k := range s.keywords {
		out = append(out, k)
	}
	return out
}

// All returns a copy of every stored parameter set
func (s *ParameterStore) All() []index.KeywordParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]index.KeywordParameters, 0, len(s.keywords))
	for _, v := range s.keywords {
		out = append(out, v.value)
	}
	return out
}

// SignificanceTable holds the per-(feature, lag) significance rows produced
// by the correlation analyzer. Replaced wholesale each analysis cycle.
type SignificanceTable struct {
	mu        sync.RWMutex
	rows      map[significanceKey]index.FeatureSignificance
	updatedAt time.Time
}

type significanceKey struct {
	feature index.Feature
	lag     index.Lag
}

// NewSignificanceTable creates an empty significance table
func NewSignificanceTable() *SignificanceTable {
	return &SignificanceTable{rows: make(map[significanceKey]index.FeatureSignificance)}
}

// ReplaceAll swaps in a full set of rows from one analysis cycle
func (t *SignificanceTable) ReplaceAll(rows []index.FeatureSignificance, at time.Time) {
	next := make(map[significanceKey]index.FeatureSignificance, len(rows))
	for _, row := range rows {
		next[significanceKey{feature: row.Feature, lag: row.Lag}] = row
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = next
	t.updatedAt = at
}

// Get returns the row for one (feature, lag), if present
func (t *SignificanceTable) Get(feature index.Feature, lag index.Lag) (index.FeatureSignificance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[significanceKey{feature: feature, lag: lag}]
	return row, ok
}

// All returns a copy of every row
func (t *SignificanceTable) All() []index.FeatureSignificance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]index.FeatureSignificance, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row)
	}
	return out
}

// UpdatedAt returns the time of the last completed analysis cycle
func (t *SignificanceTable) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}
