package master

import (
	"fmt"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// workerSlot is the master's record of one worker.
type workerSlot struct {
	id     types.WorkerID
	state  types.WorkerState
	chunks int
	rows   int
}

// Registry maps worker identities to slots. The pool size is fixed for the
// run: the first capacity distinct identities are admitted, any further
// identity is rejected. It is not safe for concurrent use.
type Registry struct {
	capacity int
	slots    map[types.WorkerID]*workerSlot
	order    []types.WorkerID
	closed   int
}

// NewRegistry creates a registry for a pool of capacity workers.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		slots:    make(map[types.WorkerID]*workerSlot, capacity),
		order:    make([]types.WorkerID, 0, capacity),
	}
}

// Admit returns the slot for id, creating it on first contact.
func (r *Registry) Admit(id types.WorkerID) (*workerSlot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty worker id", ErrProtocolViolation)
	}
	if slot, ok := r.slots[id]; ok {
		if slot.state == types.WorkerStateTerminated {
			return nil, fmt.Errorf("%w: ready signal from terminated worker %s", ErrProtocolViolation, id)
		}
		slot.state = types.WorkerStateRequesting
		return slot, nil
	}
	if len(r.slots) >= r.capacity {
		return nil, fmt.Errorf("%w: worker %s exceeds pool size %d", ErrProtocolViolation, id, r.capacity)
	}
	slot := &workerSlot{id: id, state: types.WorkerStateRequesting}
	r.slots[id] = slot
	r.order = append(r.order, id)
	return slot, nil
}

// Assigned marks id as computing r.
func (r *Registry) Assigned(id types.WorkerID, rr types.RowRange) {
	if slot, ok := r.slots[id]; ok {
		slot.state = types.WorkerStateComputing
		slot.chunks++
		slot.rows += rr.Count
	}
}

// Close marks id as terminated. It is permanent.
func (r *Registry) Close(id types.WorkerID) {
	slot, ok := r.slots[id]
	if !ok || slot.state == types.WorkerStateTerminated {
		return
	}
	slot.state = types.WorkerStateTerminated
	r.closed++
}

// Active returns the number of pool members that have not been terminated,
// including members that never made contact.
func (r *Registry) Active() int { return r.capacity - r.closed }

// Snapshot returns the slots in first-contact order.
func (r *Registry) Snapshot(ledger *Ledger) []types.WorkerSnapshot {
	out := make([]types.WorkerSnapshot, 0, len(r.order))
	for _, id := range r.order {
		slot := r.slots[id]
		snap := types.WorkerSnapshot{
			ID:     slot.id,
			State:  slot.state,
			Chunks: slot.chunks,
			Rows:   slot.rows,
		}
		if ledger != nil {
			snap.Outstanding = ledger.OutstandingFor(id)
		}
		out = append(out, snap)
	}
	return out
}
