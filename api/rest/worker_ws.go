package rest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// HubConfig describes the run the hub serves.
type HubConfig struct {
	Grid     types.GridSpec
	Viewport types.Viewport

	// Capacity is the worker pool size. Registrations beyond it are refused.
	Capacity int
}

// WorkerHub is the master side of the websocket protocol. It implements
// master.Transport: frames read from worker connections are pushed onto the
// ready and result channels, replies are written back on the connection the
// worker registered with.
type WorkerHub struct {
	config HubConfig
	log    *zap.Logger

	ready    chan types.WorkerID
	results  chan *types.ChunkResult
	failures chan error

	mu       sync.RWMutex
	conns    map[types.WorkerID]*workerConn
	admitted map[types.WorkerID]struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// workerConn wraps a single websocket connection from a worker.
type workerConn struct {
	id         types.WorkerID
	conn       *fiberws.Conn
	writeMu    sync.Mutex
	terminated atomic.Bool
}

// NewWorkerHub creates a hub for one run.
func NewWorkerHub(config HubConfig, log *zap.Logger) *WorkerHub {
	if log == nil {
		log = zap.NewNop()
	}
	buffer := max(config.Capacity, 1)
	return &WorkerHub{
		config:   config,
		log:      log,
		ready:    make(chan types.WorkerID, buffer),
		results:  make(chan *types.ChunkResult, buffer),
		failures: make(chan error, buffer),
		conns:    make(map[types.WorkerID]*workerConn),
		admitted: make(map[types.WorkerID]struct{}),
		closed:   make(chan struct{}),
	}
}

// Ready implements master.Transport.
func (h *WorkerHub) Ready() <-chan types.WorkerID { return h.ready }

// Results implements master.Transport.
func (h *WorkerHub) Results() <-chan *types.ChunkResult { return h.results }

// Failures implements master.Transport.
func (h *WorkerHub) Failures() <-chan error { return h.failures }

// Reply implements master.Transport.
func (h *WorkerHub) Reply(ctx context.Context, id types.WorkerID, reply *types.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	wc, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("worker %s not connected", id)
	}

	frame, err := types.Encode(types.MsgReply, reply)
	if err != nil {
		return err
	}
	if reply.Terminate {
		wc.terminated.Store(true)
	}
	return wc.write(frame)
}

// Connected returns the number of open worker connections.
func (h *WorkerHub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close unblocks connection handlers waiting on a scheduler that has stopped
// reading, and closes every open connection.
func (h *WorkerHub) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		for _, wc := range h.conns {
			_ = wc.conn.Close()
		}
		h.mu.Unlock()
	})
}

func (h *WorkerHub) route(app *fiber.App) {
	app.Use(WorkerWSPath, func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(WorkerWSPath, fiberws.New(h.handleConnection))
}

// handleConnection runs for the lifetime of one worker connection.
func (h *WorkerHub) handleConnection(c *fiberws.Conn) {
	wc, err := h.register(c)
	if err != nil {
		h.log.Warn("worker registration refused", zap.Error(err))
		return
	}
	defer h.unregister(wc.id)
	h.log.Info("worker connected", zap.String("worker", string(wc.id)))

	err = h.readLoop(wc)
	if wc.terminated.Load() {
		h.log.Debug("worker disconnected after termination", zap.String("worker", string(wc.id)))
		return
	}
	h.fail(fmt.Errorf("worker %s: %w", wc.id, err))
}

// register performs the handshake: one register frame in, one ack out.
func (h *WorkerHub) register(c *fiberws.Conn) (*workerConn, error) {
	_, raw, err := c.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read register frame: %w", err)
	}
	env, err := types.Decode(raw)
	if err != nil {
		return nil, err
	}
	if env.Type != types.MsgRegister {
		return nil, fmt.Errorf("expected %s frame, got %s", types.MsgRegister, env.Type)
	}
	var req types.RegisterRequest
	if err := env.Into(&req); err != nil {
		return nil, err
	}

	wc := &workerConn{id: req.WorkerID, conn: c}
	if err := h.admit(wc); err != nil {
		frame, _ := types.Encode(types.MsgRegisterAck, &types.RegisterAck{Accepted: false, WorkerID: req.WorkerID, Error: err.Error()})
		_ = wc.write(frame)
		return nil, err
	}

	frame, err := types.Encode(types.MsgRegisterAck, &types.RegisterAck{
		Accepted: true,
		WorkerID: wc.id,
		Grid:     h.config.Grid,
		Viewport: h.config.Viewport,
	})
	if err == nil {
		err = wc.write(frame)
	}
	if err != nil {
		h.unregister(wc.id)
		return nil, fmt.Errorf("send register ack: %w", err)
	}
	return wc, nil
}

func (h *WorkerHub) admit(wc *workerConn) error {
	if wc.id == "" {
		return errors.New("empty worker id")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[wc.id]; ok {
		return fmt.Errorf("worker %s already connected", wc.id)
	}
	if _, ok := h.admitted[wc.id]; ok {
		return fmt.Errorf("worker %s already took part in this run", wc.id)
	}
	if len(h.admitted) >= h.config.Capacity {
		return fmt.Errorf("worker pool is full (%d)", h.config.Capacity)
	}
	h.admitted[wc.id] = struct{}{}
	h.conns[wc.id] = wc
	return nil
}

func (h *WorkerHub) unregister(id types.WorkerID) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// readLoop forwards frames until the connection fails or a frame is malformed.
func (h *WorkerHub) readLoop(wc *workerConn) error {
	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		env, err := types.Decode(raw)
		if err != nil {
			return err
		}

		switch env.Type {
		case types.MsgReady:
			select {
			case h.ready <- wc.id:
			case <-h.closed:
				return errors.New("hub closed")
			}
		case types.MsgResult:
			var res types.ChunkResult
			if err := env.Into(&res); err != nil {
				return err
			}
			// The connection, not the payload, identifies the sender.
			res.WorkerID = wc.id
			select {
			case h.results <- &res:
			case <-h.closed:
				return errors.New("hub closed")
			}
		default:
			return fmt.Errorf("unexpected %s frame", env.Type)
		}
	}
}

func (h *WorkerHub) fail(err error) {
	select {
	case h.failures <- err:
	case <-h.closed:
	default:
		h.log.Warn("dropped transport failure", zap.Error(err))
	}
}

func (wc *workerConn) write(frame []byte) error {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	return wc.conn.WriteMessage(fiberws.TextMessage, frame)
}
