package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/DANG-PH/NgocRongOnline/internal/chat/wire"
)

// GatewayDialer dials the gateway websocket endpoint with a bearer token in
// the handshake header.
type GatewayDialer struct {
	// URL is the websocket endpoint, e.g. ws://localhost:3000/ws-chat.
	URL string
	// Origin overrides the handshake origin; the default is the http form
	// of URL.
	Origin string
}

// Dial implements Dialer.
func (d GatewayDialer) Dial(ctx context.Context, token string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := strings.TrimSpace(d.URL)
	if url == "" {
		return nil, errors.New("gateway websocket url is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("bearer token is required")
	}
	origin := strings.TrimSpace(d.Origin)
	if origin == "" {
		origin = "http" + strings.TrimPrefix(url, "ws")
	}

	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, fmt.Errorf("configure websocket: %w", err)
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Authorization", "Bearer "+token)

	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial gateway websocket: %w", err)
	}
	return newGatewayConn(conn), nil
}

// gatewayConn frames JSON events over one websocket connection. Writes are
// serialized; reads happen from the engine's single read pump.
type gatewayConn struct {
	conn    *websocket.Conn
	decoder *json.Decoder

	mu      sync.Mutex
	encoder *json.Encoder
}

func newGatewayConn(conn *websocket.Conn) *gatewayConn {
	return &gatewayConn{
		conn:    conn,
		decoder: json.NewDecoder(conn),
		encoder: json.NewEncoder(conn),
	}
}

func (c *gatewayConn) ReadFrame() (wire.Frame, error) {
	var frame wire.Frame
	if err := c.decoder.Decode(&frame); err != nil {
		return wire.Frame{}, err
	}
	return frame, nil
}

func (c *gatewayConn) WriteFrame(frame wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.Encode(frame)
}

func (c *gatewayConn) Close() error {
	return c.conn.Close()
}
