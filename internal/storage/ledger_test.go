package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-passbot/internal/models"
)

func TestAddOrUpdateEvent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	event, created, err := db.AddOrUpdateEvent(ctx, "2025-06-01", 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, event.MaxCapacity)
	assert.Equal(t, 0, event.CurrentCount)

	_, err = db.Register(ctx, 1, "2025-06-01", true)
	require.NoError(t, err)

	event, created, err = db.AddOrUpdateEvent(ctx, "2025-06-01", 5)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 5, event.MaxCapacity)
	assert.Equal(t, 1, event.CurrentCount, "upsert leaves the count alone")

	_, _, err = db.AddOrUpdateEvent(ctx, "2025-06-01", 0)
	assert.ErrorIs(t, err, models.ErrCapacityBelowCount)

	_, _, err = db.AddOrUpdateEvent(ctx, "2025-06-02", -1)
	assert.Error(t, err)
}

func TestAvailability_UnknownEventIsFull(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	available, err := db.GetAvailable(ctx, "2030-01-01")
	require.NoError(t, err)
	assert.Equal(t, 0, available)

	full, err := db.IsFull(ctx, "2030-01-01")
	require.NoError(t, err)
	assert.True(t, full)

	_, err = db.GetEvent(ctx, "2030-01-01")
	assert.ErrorIs(t, err, models.ErrEventNotFound)
}

func TestAvailability_TracksRegistrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, _, err := db.AddOrUpdateEvent(ctx, "2025-06-01", 2)
	require.NoError(t, err)

	for _, user := range []int64{10, 20} {
		_, err := db.Register(ctx, user, "2025-06-01", false)
		require.NoError(t, err)
	}

	available, err := db.GetAvailable(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 0, available)

	full, err := db.IsFull(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.True(t, full)
}

func TestDeleteEvent_Cascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, _, err := db.AddOrUpdateEvent(ctx, "2025-06-01", 10)
	require.NoError(t, err)
	v, err := db.Register(ctx, 1, "2025-06-01", true)
	require.NoError(t, err)
	_, err = db.Register(ctx, 2, "2025-06-01", false)
	require.NoError(t, err)

	removed, err := db.DeleteEvent(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = db.FindByHash(ctx, v.RedemptionCode, true)
	assert.ErrorIs(t, err, models.ErrVisitorNotFound)

	_, err = db.DeleteEvent(ctx, "2025-06-01")
	assert.ErrorIs(t, err, models.ErrEventNotFound)
}

func TestListUpcomingFor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, date := range []string{"2025-05-01", "2025-06-01", "2025-07-01"} {
		_, _, err := db.AddOrUpdateEvent(ctx, date, 3)
		require.NoError(t, err)
	}
	_, err := db.Register(ctx, 7, "2025-07-01", true)
	require.NoError(t, err)

	events, err := db.ListUpcomingFor(ctx, 7, "2025-05-20")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "2025-06-01", events[0].Date)
	assert.False(t, events[0].HasTicket)
	assert.Equal(t, 3, events[0].Available())

	assert.Equal(t, "2025-07-01", events[1].Date)
	assert.True(t, events[1].HasTicket)
	assert.Equal(t, 2, events[1].Available())
}
