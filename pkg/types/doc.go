// Package types defines the core data structures shared by the master, the
// workers and the transports.
//
// This package contains:
//   - Grid configuration (GridSpec) and units of work (RowRange)
//   - Worker identity and lifecycle states
//   - Protocol messages (Reply, ChunkResult) and their wire envelope
package types
