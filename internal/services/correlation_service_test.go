package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placepulse/internal/config"
	"placepulse/internal/index"
	"placepulse/internal/store"
)

func testCorrelationConfig() config.CorrelationConfig {
	return config.CorrelationConfig{
		MinSamples:        10,
		SignificanceLevel: 0.05,
	}
}

// seedResolvedActivities creates n resolved entries where each added blog
// review moves index3 by roughly perUnit over the one-day window.
func seedResolvedActivities(activities *store.ActivityLog, n int, perUnit float64) {
	base := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -10)
	for i := 0; i < n; i++ {
		added := i + 1
		// Small alternating jitter keeps the fit away from a perfect line.
		noise := 0.0001
		if i%2 == 1 {
			noise = -0.0001
		}
		entry := index.ActivityEntry{
			ID:           fmt.Sprintf("activity-%03d", i),
			Keyword:      "강남 미용실",
			EntityID:     "entity-a",
			ActivityDate: base.AddDate(0, 0, i%5),
			Added:        map[index.Feature]int{index.FeatureBlogReview: added},
			Baseline:     index.ResolutionSnapshot{Rank: 5, Index3: 0.5, ResolvedAt: base},
			CreatedAt:    base,
		}
		entry.ResolutionD1 = &index.ResolutionSnapshot{
			Rank:       4,
			Index3:     0.5 + perUnit*float64(added) + noise,
			ResolvedAt: base.AddDate(0, 0, 1),
		}
		activities.Create(entry)
	}
}

func TestCorrelationService_RunCycle(t *testing.T) {
	activities := store.NewActivityLog()
	table := store.NewSignificanceTable()
	seedResolvedActivities(activities, 12, 0.002)

	svc := NewCorrelationService(activities, table, testCorrelationConfig(), testLogger(), nil)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Rows, len(index.AllFeatures)*len(index.AnalyzedLags))
	assert.NotEmpty(t, report.Recommendation)

	row, ok := table.Get(index.FeatureBlogReview, index.LagOneDay)
	require.True(t, ok)
	assert.Equal(t, 12, row.SampleSize)
	assert.True(t, row.Significant)
	require.NotNil(t, row.PValue)
	assert.Less(t, *row.PValue, 0.05)
	assert.InDelta(t, 0.002, row.Coefficient, 0.001)
	assert.Greater(t, row.Correlation, 0.9)
}

func TestCorrelationService_SameDayLagNotAnalyzed(t *testing.T) {
	activities := store.NewActivityLog()
	table := store.NewSignificanceTable()
	seedResolvedActivities(activities, 12, 0.002)

	svc := NewCorrelationService(activities, table, testCorrelationConfig(), testLogger(), nil)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	// The same-day snapshot is the baseline, so a 0d row could only ever
	// carry zero response deltas. No such row may reach the table.
	for _, row := range report.Rows {
		assert.NotEqual(t, index.LagSameDay, row.Lag)
	}
	_, ok := table.Get(index.FeatureBlogReview, index.LagSameDay)
	assert.False(t, ok)
}

func TestCorrelationService_BelowSampleGate(t *testing.T) {
	activities := store.NewActivityLog()
	table := store.NewSignificanceTable()
	seedResolvedActivities(activities, 3, 0.002)

	svc := NewCorrelationService(activities, table, testCorrelationConfig(), testLogger(), nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	row, ok := table.Get(index.FeatureBlogReview, index.LagOneDay)
	require.True(t, ok)
	assert.Equal(t, 3, row.SampleSize)
	assert.False(t, row.Significant)
	assert.Nil(t, row.PValue, "below the gate no statistic is computed at all")
}

func TestCorrelationService_UndeclaredFeaturesCarryNoSamples(t *testing.T) {
	activities := store.NewActivityLog()
	table := store.NewSignificanceTable()
	seedResolvedActivities(activities, 12, 0.002)

	svc := NewCorrelationService(activities, table, testCorrelationConfig(), testLogger(), nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	row, ok := table.Get(index.FeatureSave, index.LagOneDay)
	require.True(t, ok)
	assert.Equal(t, 0, row.SampleSize)
	assert.False(t, row.Significant)
}

func TestCorrelationService_TableReplacedWholesale(t *testing.T) {
	activities := store.NewActivityLog()
	table := store.NewSignificanceTable()
	seedResolvedActivities(activities, 12, 0.002)

	svc := NewCorrelationService(activities, table, testCorrelationConfig(), testLogger(), nil)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	firstAt := table.UpdatedAt()

	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	rows, updatedAt := svc.Table()
	assert.Len(t, rows, len(index.AllFeatures)*len(index.AnalyzedLags))
	assert.False(t, updatedAt.Before(firstAt))
}
