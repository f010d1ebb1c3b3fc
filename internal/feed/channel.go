package feed

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel is a single-use duplex connection to the cache service.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens channels to the cache service.
type Dialer interface {
	Dial(ctx context.Context, url string) (Channel, error)
}

// WSDialer dials the cache service over a websocket.
type WSDialer struct {
	Dialer *websocket.Dialer // nil uses websocket.DefaultDialer
}

func (d WSDialer) Dial(ctx context.Context, url string) (Channel, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *wsChannel) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Receive blocks for the next text frame. Cancelling ctx unblocks it by
// expiring the read deadline, after which the channel is unusable. A socket
// timeout at or past the ctx deadline is reported as context.DeadlineExceeded.
func (c *wsChannel) Receive(ctx context.Context) ([]byte, error) {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		c.conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if hasDeadline && errors.As(err, &netErr) && netErr.Timeout() && !time.Now().Before(deadline) {
				return nil, context.DeadlineExceeded
			}
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
