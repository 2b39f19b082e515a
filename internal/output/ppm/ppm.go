// Package ppm writes escape counts as a plain (P3) portable pixmap.
package ppm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// Shade maps an escape count to the red and blue channels: points that
// escape late are red, points that escape early are blue.
func Shade(count int32, maxIter int) int {
	c := int(count)
	if c > maxIter {
		c = maxIter
	}
	if c < 0 {
		c = 0
	}
	return 255 * c / maxIter
}

// Encode writes the grid to w. cells must hold grid.Width*grid.Height counts
// in row-major order.
func Encode(w io.Writer, grid types.GridSpec, cells []int32) error {
	if grid.MaxIter <= 0 {
		return fmt.Errorf("ppm: max_iter must be positive, got %d", grid.MaxIter)
	}
	if len(cells) != grid.Cells() {
		return fmt.Errorf("ppm: grid %dx%d needs %d cells, got %d", grid.Width, grid.Height, grid.Cells(), len(cells))
	}

	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := fmt.Fprintf(bw, "P3\n%d %d\n255\n", grid.Width, grid.Height); err != nil {
		return err
	}

	var scratch []byte
	for i, count := range cells {
		c := Shade(count, grid.MaxIter)
		scratch = strconv.AppendInt(scratch[:0], int64(c), 10)
		scratch = append(scratch, " 0 "...)
		scratch = strconv.AppendInt(scratch, int64(255-c), 10)
		scratch = append(scratch, ' ')
		if (i+1)%grid.Width == 0 {
			scratch = append(scratch, '\n')
		}
		if _, err := bw.Write(scratch); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile encodes the grid into the file at path.
func WriteFile(path string, grid types.GridSpec, cells []int32) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Encode(f, grid, cells)
}
