package types

// WorkerID identifies a worker. It is opaque to the master; any string that
// is unique within a run is valid.
type WorkerID string

// WorkerState is the lifecycle state of a worker.
type WorkerState string

const (
	// WorkerStateRequesting means the worker sent a ready signal and waits for a reply.
	WorkerStateRequesting WorkerState = "requesting"
	// WorkerStateComputing means the worker holds a RowRange.
	WorkerStateComputing WorkerState = "computing"
	// WorkerStateTerminated means the worker received the termination sentinel.
	WorkerStateTerminated WorkerState = "terminated"
)

// WorkerSnapshot is a read-only view of a worker slot on the master.
type WorkerSnapshot struct {
	ID          WorkerID    `json:"id"`
	State       WorkerState `json:"state"`
	Chunks      int         `json:"chunks"`
	Rows        int         `json:"rows"`
	Outstanding int         `json:"outstanding"`
}
