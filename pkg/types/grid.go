package types

import (
	"fmt"
	"math"
)

// GridSpec is the immutable configuration of a single render.
type GridSpec struct {
	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	MaxIter   int `yaml:"max_iter" json:"max_iter"`
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
}

// Cells returns Width*Height.
func (g GridSpec) Cells() int {
	return g.Width * g.Height
}

// ChunkRows returns the most rows one chunk can hold: ChunkSize capped at
// Height.
func (g GridSpec) ChunkRows() int {
	return min(g.ChunkSize, g.Height)
}

// Validate checks that g describes a renderable grid.
func (g GridSpec) Validate() error {
	if g.Width <= 0 {
		return fmt.Errorf("grid width must be positive, got %d", g.Width)
	}
	if g.Height < 0 {
		return fmt.Errorf("grid height must be non-negative, got %d", g.Height)
	}
	if g.MaxIter <= 0 {
		return fmt.Errorf("grid max_iter must be positive, got %d", g.MaxIter)
	}
	if g.MaxIter > math.MaxInt32 {
		return fmt.Errorf("grid max_iter must not exceed %d, got %d", math.MaxInt32, g.MaxIter)
	}
	if g.ChunkSize <= 0 {
		return fmt.Errorf("grid chunk_size must be positive, got %d", g.ChunkSize)
	}
	return nil
}

// RowRange is one unit of assignable work: Count rows starting at Start.
type RowRange struct {
	Start int `json:"start"`
	Count int `json:"count"`
}

// End returns the first row after the range.
func (r RowRange) End() int {
	return r.Start + r.Count
}

// Overlaps reports whether r and o share at least one row.
func (r RowRange) Overlaps(o RowRange) bool {
	return r.Start < o.End() && o.Start < r.End()
}

func (r RowRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End())
}
