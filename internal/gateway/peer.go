package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
)

// Reason records why a connection was terminated.
type Reason string

// Termination reasons.
const (
	ReasonHeartbeatTimeout Reason = "heartbeat timeout"
	ReasonPeerClosed       Reason = "closed by peer"
	ReasonTransport        Reason = "transport error"
	ReasonEvicted          Reason = "evicted by reconnect"
	ReasonShutdown         Reason = "server shutdown"
)

// closeCode maps a reason to the close frame status sent to the peer.
func (r Reason) closeCode() int {
	switch r {
	case ReasonShutdown, ReasonHeartbeatTimeout:
		return websocket.CloseGoingAway
	case ReasonEvicted:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}

// sendsCloseFrame is false when the socket is already unusable.
func (r Reason) sendsCloseFrame() bool {
	return r != ReasonPeerClosed && r != ReasonTransport
}

// peer owns one socket and the goroutines serving it. DeviceConn and
// ClientConn embed it.
type peer struct {
	ws        *websocket.Conn
	send      chan []byte
	alive     atomic.Bool
	writeWait time.Duration
	maxSize   int64
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	wg     sync.WaitGroup

	// Written once inside terminate, read after done is closed.
	reason Reason
	cause  error

	// onClose runs exactly once, after the socket is closed.
	onClose func(reason Reason, cause error)
}

func newPeer(parent context.Context, ws *websocket.Conn, opts Options, logger *logging.Logger) *peer {
	ctx, cancel := context.WithCancel(parent)
	p := &peer{
		ws:        ws,
		send:      make(chan []byte, opts.SendBufferSize),
		writeWait: opts.WriteWait,
		maxSize:   opts.MaxMessageSize,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	// A fresh connection counts as live until the first heartbeat tick.
	p.alive.Store(true)
	return p
}

// Alive reports the current liveness flag.
func (p *peer) Alive() bool {
	return p.alive.Load()
}

// Done is closed once the connection has terminated.
func (p *peer) Done() <-chan struct{} {
	return p.done
}

// TerminationReason returns why the connection ended, or "" while active.
func (p *peer) TerminationReason() Reason {
	select {
	case <-p.done:
		return p.reason
	default:
		return ""
	}
}

func (p *peer) markAlive() {
	p.alive.Store(true)
}

// terminate is idempotent. Only the first call has any effect.
func (p *peer) terminate(reason Reason, cause error) {
	p.once.Do(func() {
		p.reason = reason
		p.cause = cause
		p.alive.Store(false)
		p.cancel()

		if reason.sendsCloseFrame() {
			msg := websocket.FormatCloseMessage(reason.closeCode(), string(reason))
			_ = p.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.writeWait)) //nolint:errcheck // Best effort
		}
		_ = p.ws.Close() //nolint:errcheck // Best effort

		if p.onClose != nil {
			p.onClose(reason, cause)
		}
		close(p.done)
	})
}

// enqueue queues msg for the write pump without blocking. A full queue
// drops the frame.
func (p *peer) enqueue(msg []byte) error {
	if p.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case p.send <- msg:
		return nil
	case <-p.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// serve starts the write pump, the heartbeat and any extra tasks, then
// runs the read loop on the calling goroutine. It returns once every task
// has exited.
func (p *peer) serve(heartbeat time.Duration, handle func([]byte), tasks ...func()) {
	p.spawn(p.writePump)
	p.spawn(func() { p.heartbeat(heartbeat) })
	p.spawn(func() {
		// Parent cancellation without an explicit terminate.
		<-p.ctx.Done()
		p.terminate(ReasonShutdown, nil)
	})
	for _, task := range tasks {
		p.spawn(task)
	}

	p.readLoop(handle)
	p.wg.Wait()
}

func (p *peer) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

func (p *peer) writePump() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.send:
			_ = p.ws.SetWriteDeadline(time.Now().Add(p.writeWait)) //nolint:errcheck // Surfaces on the write below
			if err := p.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.terminate(ReasonTransport, fmt.Errorf("%w: write: %w", ErrTransport, err))
				return
			}
		}
	}
}

// heartbeat pings every interval. A tick that finds the liveness flag
// still cleared from the previous tick terminates the connection.
func (p *peer) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if !p.alive.Swap(false) {
				p.terminate(ReasonHeartbeatTimeout, ErrLivenessTimeout)
				return
			}
			if err := p.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.writeWait)); err != nil {
				p.terminate(ReasonTransport, fmt.Errorf("%w: ping: %w", ErrTransport, err))
				return
			}
		}
	}
}

func (p *peer) readLoop(handle func([]byte)) {
	p.ws.SetReadLimit(p.maxSize)
	p.ws.SetPongHandler(func(string) error {
		p.markAlive()
		return nil
	})
	p.ws.SetPingHandler(func(appData string) error {
		p.markAlive()
		err := p.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(p.writeWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			switch {
			case p.ctx.Err() != nil:
				// Closed locally.
				p.terminate(ReasonShutdown, nil)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				p.terminate(ReasonPeerClosed, nil)
			default:
				p.terminate(ReasonTransport, fmt.Errorf("%w: read: %w", ErrTransport, err))
			}
			return
		}
		handle(data)
	}
}
