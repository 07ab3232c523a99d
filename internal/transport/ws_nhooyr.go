package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

// HeaderProvider supplies extra handshake headers.
type HeaderProvider func() map[string]string

const defaultReadLimit = 64 << 10

// WSDialer dials WebSocket connections with nhooyr.io/websocket.
type WSDialer struct {
	// optional: inject headers at handshake
	Headers   HeaderProvider
	ReadLimit int64
}

func NewWSDialer() *WSDialer {
	return &WSDialer{ReadLimit: defaultReadLimit}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      d.buildHeaders(),
	})
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsConn{conn: conn}, nil
}

func (d *WSDialer) buildHeaders() http.Header {
	hdr := http.Header{}
	if d.Headers == nil {
		return hdr
	}
	for k, v := range d.Headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Read(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) Write(ctx context.Context, frame string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(frame))
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *wsConn) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, reason)
	})
	return c.closeErr
}
