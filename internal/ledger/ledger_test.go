package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppetrenko/civicplan/internal/model"
)

func TestReserveAndRelease(t *testing.T) {
	l := New(map[string]int{"water_crew": 3}, 12, 2025)

	require.NoError(t, l.Reserve("water_crew", 1, 2, model.ReservationSoft))
	assert.Equal(t, 1, l.Available("water_crew", 1))

	require.NoError(t, l.Reserve("water_crew", 1, 1, model.ReservationHard))
	assert.Equal(t, 0, l.Available("water_crew", 1))

	// Over-allocation fails and leaves the slot unchanged
	err := l.Reserve("water_crew", 1, 1, model.ReservationSoft)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	slot, ok := l.Slot("water_crew", 1)
	require.True(t, ok)
	assert.Equal(t, 2, slot.SoftAllocated)
	assert.Equal(t, 1, slot.HardAllocated)

	require.NoError(t, l.Release("water_crew", 1, 2, model.ReservationSoft))
	assert.Equal(t, 2, l.Available("water_crew", 1))

	// Releasing more than allocated fails
	err = l.Release("water_crew", 1, 5, model.ReservationHard)
	assert.ErrorIs(t, err, ErrNegativeRelease)
}

func TestReserveUnknownSlot(t *testing.T) {
	l := New(map[string]int{"water_crew": 3}, 12, 2025)

	err := l.Reserve("ghost_crew", 1, 1, model.ReservationSoft)
	assert.ErrorIs(t, err, ErrUnknownSlot)
	err = l.Reserve("water_crew", 13, 1, model.ReservationSoft)
	assert.ErrorIs(t, err, ErrUnknownSlot)
	assert.Equal(t, 0, l.Available("water_crew", 13))
}

func TestReserveWindow_AllOrNothing(t *testing.T) {
	l := New(map[string]int{"construction_crew": 5}, 12, 2025)

	// Block week 3 so a 1-4 window cannot fit
	require.NoError(t, l.Reserve("construction_crew", 3, 4, model.ReservationHard))

	err := l.ReserveWindow("construction_crew", 1, 4, 2, model.ReservationSoft)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// Nothing was written in the untouched weeks
	for _, week := range []int{1, 2, 4} {
		assert.Equal(t, 5, l.Available("construction_crew", week), "week %d", week)
	}

	require.NoError(t, l.ReserveWindow("construction_crew", 4, 7, 2, model.ReservationSoft))
	for week := 4; week <= 7; week++ {
		assert.Equal(t, 3, l.Available("construction_crew", week), "week %d", week)
	}
}

func TestUpgradeSoftToHard(t *testing.T) {
	l := New(map[string]int{"general_crew": 4}, 12, 2025)

	require.NoError(t, l.ReserveWindow("general_crew", 2, 4, 3, model.ReservationSoft))
	require.NoError(t, l.Upgrade("general_crew", 2, 4, 3))

	for week := 2; week <= 4; week++ {
		slot, ok := l.Slot("general_crew", week)
		require.True(t, ok)
		assert.Equal(t, 0, slot.SoftAllocated)
		assert.Equal(t, 3, slot.HardAllocated)
		assert.Equal(t, 1, slot.Available())
	}

	// Upgrading more than the soft hold fails without touching anything
	err := l.Upgrade("general_crew", 2, 4, 1)
	assert.ErrorIs(t, err, ErrNegativeRelease)
}

func TestInvariantUnderConcurrentReservations(t *testing.T) {
	const capacity = 10
	l := New(map[string]int{"water_crew": capacity}, 4, 2025)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for week := 1; week <= 4; week++ {
				if err := l.Reserve("water_crew", week, 1, model.ReservationSoft); err == nil {
					_ = l.Release("water_crew", week, 1, model.ReservationSoft)
				}
				_ = l.Reserve("water_crew", week, 1, model.ReservationHard)
			}
		}()
	}
	wg.Wait()

	for _, slot := range l.Snapshot() {
		total := slot.SoftAllocated + slot.HardAllocated
		assert.LessOrEqual(t, total, slot.Capacity,
			"%s week %d over-allocated", slot.ResourceType, slot.WeekNumber)
		assert.GreaterOrEqual(t, slot.SoftAllocated, 0)
		assert.GreaterOrEqual(t, slot.HardAllocated, 0)
	}
}

func TestSnapshotAndRestore(t *testing.T) {
	l := New(map[string]int{"water_crew": 3, "general_crew": 4}, 2, 2025)
	require.NoError(t, l.Reserve("water_crew", 1, 2, model.ReservationSoft))

	snap := l.Snapshot()
	assert.Len(t, snap, 4)

	restored := Restore(snap, 2025)
	assert.Equal(t, 1, restored.Available("water_crew", 1))
	assert.Equal(t, []string{"general_crew", "water_crew"}, restored.ResourceTypes())
}
