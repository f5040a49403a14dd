package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailytracker/offline-agent/internal/notification"
)

func openTestRepo(t *testing.T) HistoryRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveDisplayed_RoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	n := notification.New("Daily Tracker", "Time to check in!", "daily-tracker-reminder").
		WithReminderData("42", notification.ActionOpen)
	require.NoError(t, repo.SaveDisplayed(ctx, n))

	records, err := repo.ListDisplayed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, n.ID, records[0].NotificationID)
	assert.Equal(t, "Daily Tracker", records[0].Title)
	assert.Equal(t, "daily-tracker-reminder", records[0].Tag)
	assert.Equal(t, "42", records[0].ReminderID)
}

func TestListDisplayed_NewestFirstAndLimited(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		n := notification.New("Daily Tracker", "body", "tag")
		n.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveDisplayed(ctx, n))
	}

	records, err := repo.ListDisplayed(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].DisplayedAt.After(records[1].DisplayedAt))
	assert.True(t, records[1].DisplayedAt.After(records[2].DisplayedAt))
}

func TestSaveInteraction_ListByNotification(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveInteraction(ctx, "n-1", "click", "open"))
	require.NoError(t, repo.SaveInteraction(ctx, "n-1", "close", ""))
	require.NoError(t, repo.SaveInteraction(ctx, "n-2", "click", "dismiss"))

	events, err := repo.ListInteractions(ctx, "n-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "click", events[0].Kind)
	assert.Equal(t, "open", events[0].Action)
	assert.Equal(t, "close", events[1].Kind)
}

func TestDeleteBefore_PrunesOldRows(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	old := notification.New("Daily Tracker", "old", "tag-old")
	old.Timestamp = time.Now().Add(-40 * 24 * time.Hour)
	recent := notification.New("Daily Tracker", "recent", "tag-recent")
	require.NoError(t, repo.SaveDisplayed(ctx, old))
	require.NoError(t, repo.SaveDisplayed(ctx, recent))

	deleted, err := repo.DeleteBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := repo.ListDisplayed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recent.ID, records[0].NotificationID)
}

func TestListInteractions_Empty(t *testing.T) {
	repo := openTestRepo(t)
	events, err := repo.ListInteractions(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, events)
}
