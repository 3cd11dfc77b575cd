package transport

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/net/websocket"
)

// Conn is one open push connection carrying text frames.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketDialer dials a websocket endpoint with the session's credential
// headers attached.
type WebsocketDialer struct {
	URL    string
	Origin string
	Header http.Header
}

// Dial opens the websocket.
func (d WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	cfg, err := websocket.NewConfig(d.URL, d.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket config for %s: %w", d.URL, err)
	}
	for key, values := range d.Header {
		for _, v := range values {
			cfg.Header.Add(key, v)
		}
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", d.URL, err)
	}
	return wsConn{ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c wsConn) ReadFrame() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c wsConn) WriteFrame(data []byte) error {
	return websocket.Message.Send(c.ws, string(data))
}

func (c wsConn) Close() error {
	return c.ws.Close()
}
