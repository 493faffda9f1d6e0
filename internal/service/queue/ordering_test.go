package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayurflow/clinic-api/internal/model"
)

func entry(id string, prio model.Priority, status model.QueueEntryStatus, enqueued time.Time) *model.QueueEntry {
	e := &model.QueueEntry{
		QueueType:  model.QueueTypeAgnikarma,
		Priority:   prio,
		Status:     status,
		EnqueuedAt: enqueued,
	}
	e.ID = uuid.MustParse(id)
	return e
}

var (
	idA = "11111111-1111-1111-1111-111111111111"
	idB = "22222222-2222-2222-2222-222222222222"
	idC = "33333333-3333-3333-3333-333333333333"
)

func TestOrderSortsByPriorityThenEnqueueTime(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(idA, model.PriorityNormal, model.QueueEntryStatusWaiting, base),
		entry(idB, model.PriorityUrgent, model.QueueEntryStatusWaiting, base.Add(5*time.Minute)),
		entry(idC, model.PriorityNormal, model.QueueEntryStatusWaiting, base.Add(-5*time.Minute)),
	}

	order(model.QueueTypeAgnikarma, entries, 0)

	assert.Equal(t, idB, entries[0].ID.String(), "urgent outranks earlier enqueue")
	assert.Equal(t, idC, entries[1].ID.String())
	assert.Equal(t, idA, entries[2].ID.String())

	assert.Equal(t, 0, entries[0].Position)
	assert.Equal(t, 1, entries[1].Position)
	assert.Equal(t, 2, entries[2].Position)
}

func TestOrderTieBreaksByID(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(idB, model.PriorityHigh, model.QueueEntryStatusWaiting, base),
		entry(idA, model.PriorityHigh, model.QueueEntryStatusWaiting, base),
	}

	order(model.QueueTypeAgnikarma, entries, 0)

	assert.Equal(t, idA, entries[0].ID.String())
	assert.Equal(t, idB, entries[1].ID.String())
}

func TestOrderComparesEnqueueTimeAtMillisecondResolution(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		// Sub-millisecond difference collapses into the id tie-break.
		entry(idB, model.PriorityNormal, model.QueueEntryStatusWaiting, base.Add(500*time.Microsecond)),
		entry(idA, model.PriorityNormal, model.QueueEntryStatusWaiting, base),
	}

	order(model.QueueTypeAgnikarma, entries, 0)

	assert.Equal(t, idA, entries[0].ID.String())
}

func TestOrderComputesWaitEstimates(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(idA, model.PriorityNormal, model.QueueEntryStatusWaiting, base),
		entry(idB, model.PriorityNormal, model.QueueEntryStatusWaiting, base.Add(time.Minute)),
	}

	order(model.QueueTypeAgnikarma, entries, 20)

	assert.Equal(t, 0, entries[0].EstimatedWaitMinutes)
	assert.Equal(t, 20, entries[1].EstimatedWaitMinutes)
}

func TestOrderSinksIneligibleEntries(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(idA, model.PriorityUrgent, model.QueueEntryStatusInProgress, base),
		entry(idB, model.PriorityLow, model.QueueEntryStatusWaiting, base),
	}

	order(model.QueueTypeAgnikarma, entries, 0)

	assert.Equal(t, idB, entries[0].ID.String())
	assert.Equal(t, 0, entries[0].Position)
	assert.Equal(t, 0, entries[1].Position)
}

func TestNextEligiblePriorityOutranksCheckedIn(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	// A: NORMAL checked-in at 10:00, B: URGENT waiting at 10:05.
	a := entry(idA, model.PriorityNormal, model.QueueEntryStatusCheckedIn, base)
	b := entry(idB, model.PriorityUrgent, model.QueueEntryStatusWaiting, base.Add(5*time.Minute))

	next := nextEligible([]*model.QueueEntry{a, b})
	require.NotNil(t, next)
	assert.Equal(t, idB, next.ID.String(), "priority outranks checked-in status")
}

func TestNextEligibleCheckedInBeatsWaitingAtEqualPriority(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	waiting := entry(idA, model.PriorityNormal, model.QueueEntryStatusWaiting, base)
	checkedIn := entry(idB, model.PriorityNormal, model.QueueEntryStatusCheckedIn, base.Add(10*time.Minute))

	next := nextEligible([]*model.QueueEntry{waiting, checkedIn})
	require.NotNil(t, next)
	assert.Equal(t, idB, next.ID.String(), "a patient physically present outranks one who only booked")
}

func TestNextEligibleSkipsInProgressAndCompleted(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(idA, model.PriorityUrgent, model.QueueEntryStatusInProgress, base),
		entry(idB, model.PriorityUrgent, model.QueueEntryStatusCompleted, base),
		entry(idC, model.PriorityLow, model.QueueEntryStatusWaiting, base),
	}

	next := nextEligible(entries)
	require.NotNil(t, next)
	assert.Equal(t, idC, next.ID.String())
}

func TestNextEligibleEmptyQueue(t *testing.T) {
	assert.Nil(t, nextEligible(nil))
	assert.Nil(t, nextEligible([]*model.QueueEntry{
		entry(idA, model.PriorityUrgent, model.QueueEntryStatusCompleted, time.Now()),
	}))
}
