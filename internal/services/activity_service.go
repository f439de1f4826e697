package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"placepulse/internal/index"
	"placepulse/internal/store"
)

// ActivityService records operator-declared activities and resolves their
// lagged rank snapshots once the observation log has caught up.
type ActivityService struct {
	activities   *store.ActivityLog
	observations *store.ObservationLog
	logger       *slog.Logger
}

// NewActivityService creates a new activity service
func NewActivityService(activities *store.ActivityLog, observations *store.ObservationLog, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		activities:   activities,
		observations: observations,
		logger:       logger.With(slog.String("component", "activity_service")),
	}
}

// ResolutionResult summarizes one resolution pass
type ResolutionResult struct {
	RunAt    time.Time `json:"run_at"`
	Pending  int       `json:"pending"`
	Resolved int       `json:"resolved"`
	Missing  int       `json:"missing"`
}

// Submit records a new activity declaration. The baseline snapshot is taken
// from the latest stored observation for the entity, so an activity can only
// be declared for an entity the engine has actually seen.
func (s *ActivityService) Submit(ctx context.Context, keyword, entityID string, activityDate time.Time, added map[index.Feature]int) (index.ActivityEntry, error) {
	for feature := range added {
		if !feature.IsValid() {
			return index.ActivityEntry{}, fmt.Errorf("unknown activity feature %q", feature)
		}
	}

	baseline, ok := s.observations.Latest(keyword, entityID)
	if !ok {
		return index.ActivityEntry{}, fmt.Errorf("baseline observation not found for keyword %q entity %q", keyword, entityID)
	}

	now := time.Now().UTC()
	entry := index.ActivityEntry{
		ID:           uuid.New().String(),
		Keyword:      keyword,
		EntityID:     entityID,
		ActivityDate: activityDate.UTC().Truncate(24 * time.Hour),
		Added:        added,
		Baseline: index.ResolutionSnapshot{
			Rank:       baseline.Rank,
			Index3:     baseline.Index3,
			ResolvedAt: now,
		},
		CreatedAt: now,
	}
	s.activities.Create(entry)

	s.logger.InfoContext(ctx, "activity recorded",
		slog.String("id", entry.ID),
		slog.String("keyword", keyword),
		slog.String("entity_id", entityID),
		slog.Time("activity_date", entry.ActivityDate))
	return entry, nil
}

// Get returns the activity entry with the given id
func (s *ActivityService) Get(id string) (index.ActivityEntry, error) {
	return s.activities.Get(id)
}

// All returns every recorded activity entry
func (s *ActivityService) All() []index.ActivityEntry {
	return s.activities.All()
}

// ResolvePending walks every entry with an elapsed, unresolved lag window
// and captures the rank snapshot from the observation on the due date. A lag
// whose observation has not arrived yet is left pending for the next pass;
// repeated passes over the same entry are idempotent.
func (s *ActivityService) ResolvePending(ctx context.Context, now time.Time) (ResolutionResult, error) {
	result := ResolutionResult{RunAt: now.UTC()}

	pending := s.activities.PendingAt(now)
	result.Pending = len(pending)

	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		for _, lag := range []index.Lag{index.LagOneDay, index.LagSevenDays} {
			if entry.Resolution(lag) != nil {
				continue
			}
			due := entry.ActivityDate.AddDate(0, 0, lag.Days())
			if now.Before(due) {
				continue
			}

			obs, ok := s.observations.At(entry.Keyword, entry.EntityID, due)
			if !ok {
				result.Missing++
				continue
			}

			snap := index.ResolutionSnapshot{
				Rank:       obs.Rank,
				Index3:     obs.Index3,
				ResolvedAt: now.UTC(),
			}
			switch err := s.activities.Resolve(entry.ID, lag, snap); err {
			case nil:
				result.Resolved++
				s.logger.InfoContext(ctx, "activity resolved",
					slog.String("id", entry.ID),
					slog.String("lag", lag.String()),
					slog.Int("rank", obs.Rank))
			case store.ErrAlreadyResolved:
				// concurrent pass got there first, nothing to do
			default:
				return result, fmt.Errorf("resolve activity %s at %s: %w", entry.ID, lag, err)
			}
		}
	}

	if result.Resolved > 0 || result.Missing > 0 {
		s.logger.InfoContext(ctx, "resolution pass completed",
			slog.Int("pending", result.Pending),
			slog.Int("resolved", result.Resolved),
			slog.Int("missing", result.Missing))
	}
	return result, nil
}
