package queue

import (
	"sort"

	"github.com/ayurflow/clinic-api/internal/model"
)

// serviceMinutes is the nominal per-patient service time used for wait
// estimates when no history is available for the queue type.
var serviceMinutes = map[model.QueueType]int{
	model.QueueTypeConsultation: 15,
	model.QueueTypeAgnikarma:    30,
	model.QueueTypePanchakarma:  60,
	model.QueueTypeShirodhara:   45,
}

func nominalServiceMinutes(t model.QueueType) int {
	if m, ok := serviceMinutes[t]; ok {
		return m
	}
	return 20
}

// less is the total order within one queue: priority rank ascending (URGENT
// first), then enqueue time, then id so equal timestamps still produce one
// well-defined order.
func less(a, b *model.QueueEntry) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	// Enqueue times compare at millisecond resolution; sub-millisecond
	// differences fall through to the id tie-break.
	am, bm := a.EnqueuedAt.UnixMilli(), b.EnqueuedAt.UnixMilli()
	if am != bm {
		return am < bm
	}
	return a.ID.String() < b.ID.String()
}

// order sorts entries in place and recomputes position and wait estimate for
// every eligible entry. In-progress and completed entries sink to the back
// with no position.
func order(queueType model.QueueType, entries []*model.QueueEntry, avgWaitMinutes float64) {
	sort.SliceStable(entries, func(i, j int) bool {
		ei, ej := entries[i].Status.Eligible(), entries[j].Status.Eligible()
		if ei != ej {
			return ei
		}
		return less(entries[i], entries[j])
	})

	perPatient := avgWaitMinutes
	if perPatient <= 0 {
		perPatient = float64(nominalServiceMinutes(queueType))
	}

	pos := 0
	for _, e := range entries {
		if !e.Status.Eligible() {
			e.Position = 0
			e.EstimatedWaitMinutes = 0
			continue
		}
		e.Position = pos
		e.EstimatedWaitMinutes = int(float64(pos) * perPatient)
		pos++
	}
}

// callNextLess orders eligible entries for dequeue. Priority dominates; at
// equal priority a checked-in patient outranks one who has only booked, and
// only then do enqueue time and id decide.
func callNextLess(a, b *model.QueueEntry) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	aChecked := a.Status == model.QueueEntryStatusCheckedIn
	bChecked := b.Status == model.QueueEntryStatusCheckedIn
	if aChecked != bChecked {
		return aChecked
	}
	return less(a, b)
}

// nextEligible picks the entry call-next would return, or nil.
func nextEligible(entries []*model.QueueEntry) *model.QueueEntry {
	var best *model.QueueEntry
	for _, e := range entries {
		if !e.Status.Eligible() {
			continue
		}
		if best == nil || callNextLess(e, best) {
			best = e
		}
	}
	return best
}
