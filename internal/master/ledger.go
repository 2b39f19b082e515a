package master

import (
	"fmt"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// Ledger tracks which rows are still unassigned and which assigned ranges
// have not been harvested yet. It is not safe for concurrent use.
type Ledger struct {
	height    int
	chunkSize int
	remaining int
	issued    int

	// outstanding maps a worker to its in-flight ranges keyed by start row.
	// A worker can briefly hold two: the one whose result is still in
	// transit and the one it was just handed.
	outstanding map[types.WorkerID]map[int]types.RowRange
	pending     int
}

// NewLedger creates a ledger for height rows carved into chunkSize pieces.
func NewLedger(height, chunkSize int) (*Ledger, error) {
	if height < 0 {
		return nil, fmt.Errorf("%w: negative height %d", ErrAllocation, height)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrAllocation, chunkSize)
	}
	return &Ledger{
		height:      height,
		chunkSize:   chunkSize,
		remaining:   height,
		outstanding: make(map[types.WorkerID]map[int]types.RowRange),
	}, nil
}

// NextChunk carves the next range off the unassigned rows. The second return
// value is false once every row has been handed out.
func (l *Ledger) NextChunk() (types.RowRange, bool) {
	if l.remaining == 0 {
		return types.RowRange{}, false
	}
	count := min(l.remaining, l.chunkSize)
	r := types.RowRange{Start: l.height - l.remaining, Count: count}
	l.remaining -= count
	l.issued++
	return r, true
}

// Track records r as in flight for worker id.
func (l *Ledger) Track(id types.WorkerID, r types.RowRange) {
	ranges, ok := l.outstanding[id]
	if !ok {
		ranges = make(map[int]types.RowRange, 2)
		l.outstanding[id] = ranges
	}
	ranges[r.Start] = r
	l.pending++
}

// Settle clears the in-flight range of worker id that starts at offset and
// returns it. A result that does not match a tracked range is a protocol
// violation.
func (l *Ledger) Settle(id types.WorkerID, offset, rows int) (types.RowRange, error) {
	ranges := l.outstanding[id]
	r, ok := ranges[offset]
	if !ok {
		return types.RowRange{}, fmt.Errorf("%w: worker %s returned rows at offset %d it was not assigned", ErrProtocolViolation, id, offset)
	}
	if r.Count != rows {
		return types.RowRange{}, fmt.Errorf("%w: worker %s returned %d rows for range %s", ErrProtocolViolation, id, rows, r)
	}
	delete(ranges, offset)
	if len(ranges) == 0 {
		delete(l.outstanding, id)
	}
	l.pending--
	return r, nil
}

// Remaining returns the number of rows not yet assigned.
func (l *Ledger) Remaining() int { return l.remaining }

// Exhausted reports whether every row has been assigned.
func (l *Ledger) Exhausted() bool { return l.remaining == 0 }

// Outstanding returns the number of assigned ranges not yet harvested.
func (l *Ledger) Outstanding() int { return l.pending }

// OutstandingFor returns the number of ranges in flight for worker id.
func (l *Ledger) OutstandingFor(id types.WorkerID) int { return len(l.outstanding[id]) }

// Issued returns how many ranges have been handed out.
func (l *Ledger) Issued() int { return l.issued }
