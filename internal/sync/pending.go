package sync

import "time"

// mutationPhase tracks a pending mutation through its lifecycle:
// pending-local (debounce timer armed) then in-flight (remote call issued),
// after which the record is resolved or rolled back and discarded.
type mutationPhase int

const (
	phasePendingLocal mutationPhase = iota
	phaseInFlight
)

// pendingMutation is the ephemeral per-line-item record behind an optimistic
// edit. At most one exists per line-item ID; a new edit within the debounce
// window replaces the timer, not the record, so rollbackQuantity always holds
// the last server-confirmed quantity rather than an intermediate optimistic
// value.
type pendingMutation struct {
	lineItemID       string
	desiredQuantity  int
	rollbackQuantity int
	timer            *time.Timer
	phase            mutationPhase
}

func (p *pendingMutation) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}
