package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

func TestNetwork_ReadyReplyRoundTrip(t *testing.T) {
	ctx := context.Background()
	n := NewNetwork(2)
	link, err := n.Link("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.WorkerID("w-1"), link.ID())

	require.NoError(t, link.SendReady(ctx))
	assert.Equal(t, types.WorkerID("w-1"), <-n.Ready())

	require.NoError(t, n.Reply(ctx, "w-1", types.AssignReply(types.RowRange{Start: 0, Count: 3})))
	reply, err := link.AwaitReply(ctx)
	require.NoError(t, err)
	require.NotNil(t, reply.Range)
	assert.Equal(t, 3, reply.Range.Count)
}

func TestNetwork_ResultIsCopied(t *testing.T) {
	ctx := context.Background()
	n := NewNetwork(1)
	link, err := n.Link("w-1")
	require.NoError(t, err)

	scratch := []int32{1, 2, 3}
	require.NoError(t, link.SendResult(ctx, &types.ChunkResult{WorkerID: "w-1", Offset: 0, RowCount: 1, Data: scratch}))
	scratch[0] = 99

	res := <-n.Results()
	assert.Equal(t, []int32{1, 2, 3}, res.Data)
}

func TestNetwork_DuplicateLink(t *testing.T) {
	n := NewNetwork(1)
	_, err := n.Link("w-1")
	require.NoError(t, err)
	_, err = n.Link("w-1")
	assert.Error(t, err)
}

func TestNetwork_ReplyUnknownWorker(t *testing.T) {
	n := NewNetwork(1)
	err := n.Reply(context.Background(), "ghost", types.TerminateReply())
	assert.Error(t, err)
}

func TestLink_AwaitReplyHonoursContext(t *testing.T) {
	n := NewNetwork(1)
	link, err := n.Link("w-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = link.AwaitReply(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
