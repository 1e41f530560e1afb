package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNoEndpoint is returned when no WebSocket base URL is configured
var ErrNoEndpoint = errors.New("no websocket endpoint configured")

// Conn is the subset of *websocket.Conn the manager uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a realtime connection
type Dialer interface {
	Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error)
}

// WSDialer dials real WebSocket endpoints
type WSDialer struct {
	HandshakeTimeout time.Duration
}

// Dial performs the WebSocket handshake
func (d *WSDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return conn, nil
}

// EndpointFor builds the channel URL for a warehouse
func EndpointFor(base, warehouseID string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ErrNoEndpoint
	}
	return base + "/" + url.PathEscape(warehouseID), nil
}

func authHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}
