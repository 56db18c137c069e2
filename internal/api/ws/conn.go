package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/termhost/internal/infrastructure/monitoring"
)

// ErrConnClosed is returned by Send after the connection is closed.
var ErrConnClosed = errors.New("ws: connection closed")

// Conn is one surface connection. It implements dispatch.Transport.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	metrics      *monitoring.Metrics

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(c *websocket.Conn, writeTimeout time.Duration, metrics *monitoring.Metrics) *Conn {
	return &Conn{
		ws:           c,
		writeTimeout: writeTimeout,
		metrics:      metrics,
		done:         make(chan struct{}),
	}
}

// Send writes one text frame. The write deadline is the earlier of the
// context deadline and the configured write timeout.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.RecordWSMessage("out", commandOf(data))
	return nil
}

func (c *Conn) ping(deadline time.Time) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends a close frame with the given code and closes the socket.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

// commandOf extracts the command label without decoding the whole frame.
func commandOf(data []byte) string {
	node, err := sonic.Get(data, "command")
	if err != nil {
		return "unknown"
	}
	cmd, err := node.String()
	if err != nil || cmd == "" {
		return "unknown"
	}
	return cmd
}
