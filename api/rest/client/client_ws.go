// Package client is the worker side of the master's websocket protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// ErrRejected is returned when the master refuses a registration.
var ErrRejected = errors.New("registration rejected")

// Link is a worker's websocket connection to the master. It implements
// worker.Link. A Link is used by one goroutine at a time.
type Link struct {
	id   types.WorkerID
	conn *websocket.Conn
	ack  types.RegisterAck
}

// Dial connects to the master at url and registers as id. The returned
// link carries the grid and viewport the master announced.
func Dial(ctx context.Context, url string, id types.WorkerID, timeout time.Duration) (*Link, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, toWebSocketURL(url), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	l := &Link{id: id, conn: conn}
	if err := l.register(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

func (l *Link) register(ctx context.Context) error {
	if err := l.send(ctx, types.MsgRegister, &types.RegisterRequest{WorkerID: l.id}); err != nil {
		return fmt.Errorf("send register message failed: %w", err)
	}
	env, err := l.receive(ctx)
	if err != nil {
		return fmt.Errorf("read register ack failed: %w", err)
	}
	if env.Type != types.MsgRegisterAck {
		return fmt.Errorf("unexpected ack type: %s", env.Type)
	}
	if err := env.Into(&l.ack); err != nil {
		return err
	}
	if !l.ack.Accepted {
		return fmt.Errorf("%w: %s", ErrRejected, l.ack.Error)
	}
	return nil
}

// ID implements worker.Link.
func (l *Link) ID() types.WorkerID { return l.id }

// Grid returns the grid the master is rendering.
func (l *Link) Grid() types.GridSpec { return l.ack.Grid }

// Viewport returns the region of the plane the master is rendering.
func (l *Link) Viewport() types.Viewport { return l.ack.Viewport }

// SendReady implements worker.Link.
func (l *Link) SendReady(ctx context.Context) error {
	return l.send(ctx, types.MsgReady, nil)
}

// AwaitReply implements worker.Link.
func (l *Link) AwaitReply(ctx context.Context) (*types.Reply, error) {
	env, err := l.receive(ctx)
	if err != nil {
		return nil, err
	}
	if env.Type != types.MsgReply {
		return nil, fmt.Errorf("unexpected %s frame while waiting for a reply", env.Type)
	}
	var reply types.Reply
	if err := env.Into(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// SendResult implements worker.Link. The payload is serialized before
// SendResult returns.
func (l *Link) SendResult(ctx context.Context, res *types.ChunkResult) error {
	return l.send(ctx, types.MsgResult, res)
}

// Close closes the connection.
func (l *Link) Close() error {
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return l.conn.Close()
}

func (l *Link) send(ctx context.Context, t types.MessageType, payload any) error {
	frame, err := types.Encode(t, payload)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = l.conn.SetWriteDeadline(time.Now()) })
	defer stop()
	if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (l *Link) receive(ctx context.Context) (*types.Envelope, error) {
	stop := context.AfterFunc(ctx, func() { _ = l.conn.SetReadDeadline(time.Now()) })
	defer stop()
	_, raw, err := l.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return types.Decode(raw)
}

// toWebSocketURL converts an HTTP(s) URL or bare host:port to a ws:// URL.
func toWebSocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		return raw
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	}
	return "ws://" + raw
}
