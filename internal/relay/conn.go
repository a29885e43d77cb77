package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/park285/chess-duel/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 5 * time.Second
)

var errSlowConsumer = errors.New("relay: send queue full")

// Conn is one accepted websocket. Frames leave through a buffered queue drained by
// writePump so a slow peer never blocks the dispatcher.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id string, ws *websocket.Conn, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{id: id, ws: ws, send: make(chan []byte, buffer), done: make(chan struct{})}
}

func (c *Conn) ID() string { return c.id }

// enqueue never blocks. A full queue closes the connection, which then goes through
// the regular disconnect path.
func (c *Conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		obslog.L().Warn("relay_slow_consumer", zap.String("conn_id", c.id), zap.Int("queue_cap", cap(c.send)))
		c.close(websocket.StatusPolicyViolation, "slow consumer")
		return errSlowConsumer
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case frame := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				obslog.L().Debug("relay_write_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				obslog.L().Debug("relay_ping_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (c *Conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		// Close blocks for the handshake; the read loop notices and unwinds
		if c.ws != nil {
			go func() { _ = c.ws.Close(code, reason) }()
		}
	})
}
