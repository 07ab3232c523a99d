package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Conn is one live bidirectional text channel.
type Conn interface {
	// Read blocks for the next text frame. Any error means the channel is gone.
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, frame string) error
	Close(reason string) error
}

// Pinger is implemented by connections that support protocol-level heartbeats.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// Endpoint builds "<scheme>://<host>:<port>/<opponent>" from the hosting origin.
// An https origin selects wss, http selects ws; ws/wss origins pass through.
func Endpoint(origin, opponent string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	opponent = strings.Trim(strings.TrimSpace(opponent), "/")
	if opponent == "" {
		return "", fmt.Errorf("empty opponent identifier")
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if scheme == "wss" {
			port = "443"
		}
	}
	return fmt.Sprintf("%s://%s/%s", scheme, net.JoinHostPort(u.Hostname(), port), url.PathEscape(opponent)), nil
}
