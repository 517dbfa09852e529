package push

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Conn is the receive side of a push channel.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a push channel for one session.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// WebsocketDialer dials <base>/ws/sessions/<id>.
type WebsocketDialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewWebsocketDialer creates a dialer for the push service rooted at baseURL (ws:// or wss://).
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  websocket.DefaultDialer,
	}
}

func (d *WebsocketDialer) URL(sessionID string) string {
	return d.baseURL + "/ws/sessions/" + url.PathEscape(sessionID)
}

func (d *WebsocketDialer) Dial(ctx context.Context, sessionID string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.URL(sessionID), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL(sessionID), err)
	}
	return conn, nil
}
