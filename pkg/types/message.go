package types

// Reply is the master's answer to a ready signal: either a range to compute
// or the termination sentinel.
type Reply struct {
	Terminate bool      `json:"terminate,omitempty"`
	Range     *RowRange `json:"range,omitempty"`
}

// AssignReply builds a reply carrying r.
func AssignReply(r RowRange) *Reply {
	return &Reply{Range: &r}
}

// TerminateReply builds the termination sentinel.
func TerminateReply() *Reply {
	return &Reply{Terminate: true}
}

// ChunkResult carries the computed rows of one range back to the master.
// Offset is the first row of the range; Data holds RowCount*width cells in
// row-major order.
type ChunkResult struct {
	WorkerID WorkerID `json:"worker_id"`
	Offset   int      `json:"offset"`
	RowCount int      `json:"row_count"`
	Data     []int32  `json:"data"`
}
