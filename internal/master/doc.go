// Package master implements the coordinating side of a render: the work
// ledger that carves the grid into row chunks, the result buffer that
// assembles worker output, and the scheduler loop that answers ready signals,
// harvests results and detects completion.
//
// Everything in this package is driven by a single goroutine (Scheduler.Run).
// The only state read from other goroutines is the published Status snapshot.
package master
