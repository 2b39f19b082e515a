// Package summary prints an end-of-run report for operators.
package summary

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/refrantz/paralellMandelbrot/internal/master"
)

// Write prints report to w as a short human-readable block.
func Write(w io.Writer, report *master.Report) error {
	if report == nil {
		return fmt.Errorf("summary: nil report")
	}

	g := report.Grid
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", report.RunID)
	fmt.Fprintf(&b, "  grid        %dx%d  max_iter=%d  chunk=%d\n", g.Width, g.Height, g.MaxIter, g.ChunkSize)
	fmt.Fprintf(&b, "  cells       %s\n", humanize.Comma(int64(len(report.Cells))))
	fmt.Fprintf(&b, "  chunks      %s\n", humanize.Comma(int64(report.Chunks)))
	fmt.Fprintf(&b, "  wall time   %s\n", report.Duration.Round(time.Millisecond))
	if secs := report.Duration.Seconds(); secs > 0 {
		fmt.Fprintf(&b, "  throughput  %s rows/s\n", humanize.CommafWithDigits(float64(g.Height)/secs, 1))
	}

	lat := report.Latency
	if lat.Count > 0 {
		fmt.Fprintf(&b, "  chunk rtt   min=%s mean=%s p50=%s p95=%s p99=%s max=%s\n",
			lat.Min, lat.Mean, lat.P50, lat.P95, lat.P99, lat.Max)
	}

	if len(report.Workers) > 0 {
		fmt.Fprintf(&b, "  workers\n")
		for _, wk := range report.Workers {
			share := 0.0
			if g.Height > 0 {
				share = 100 * float64(wk.Rows) / float64(g.Height)
			}
			fmt.Fprintf(&b, "    %-38s chunks=%-6d rows=%-8d %5.1f%%\n", wk.ID, wk.Chunks, wk.Rows, share)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
