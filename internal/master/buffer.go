package master

import (
	"fmt"
	"math"
)

// ResultBuffer is the flat row-major grid of escape counts owned by the master.
// Every row must be written exactly once.
type ResultBuffer struct {
	width   int
	height  int
	cells   []int32
	written []bool
	rows    int
}

// NewResultBuffer allocates a width x height buffer. maxCells, when positive,
// caps the number of cells the master is willing to hold.
func NewResultBuffer(width, height, maxCells int) (*ResultBuffer, error) {
	if width <= 0 || height < 0 {
		return nil, fmt.Errorf("%w: invalid grid %dx%d", ErrAllocation, width, height)
	}
	if height > 0 && width > math.MaxInt/height {
		return nil, fmt.Errorf("%w: grid %dx%d overflows", ErrAllocation, width, height)
	}
	cells := width * height
	if maxCells > 0 && cells > maxCells {
		return nil, fmt.Errorf("%w: grid %dx%d needs %d cells, limit is %d", ErrAllocation, width, height, cells, maxCells)
	}
	return &ResultBuffer{
		width:   width,
		height:  height,
		cells:   make([]int32, cells),
		written: make([]bool, height),
	}, nil
}

// Write copies rows starting at row offset into the buffer.
func (b *ResultBuffer) Write(offset, rows int, data []int32) error {
	if offset < 0 || rows <= 0 || offset+rows > b.height {
		return fmt.Errorf("%w: rows [%d,%d) outside grid of height %d", ErrProtocolViolation, offset, offset+rows, b.height)
	}
	if len(data) != rows*b.width {
		return fmt.Errorf("%w: %d rows need %d cells, got %d", ErrProtocolViolation, rows, rows*b.width, len(data))
	}
	for row := offset; row < offset+rows; row++ {
		if b.written[row] {
			return fmt.Errorf("%w: row %d written twice", ErrProtocolViolation, row)
		}
	}
	copy(b.cells[offset*b.width:], data)
	for row := offset; row < offset+rows; row++ {
		b.written[row] = true
	}
	b.rows += rows
	return nil
}

// Complete reports whether every row has been written.
func (b *ResultBuffer) Complete() bool { return b.rows == b.height }

// RowsWritten returns the number of rows received so far.
func (b *ResultBuffer) RowsWritten() int { return b.rows }

// Cells returns the underlying slice. It is only meaningful once Complete.
func (b *ResultBuffer) Cells() []int32 { return b.cells }
