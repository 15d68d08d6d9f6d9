package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voicechat/pkg/session"
)

// WatchSession streams a session's events to fn until ctx is cancelled or
// the server closes the connection. The first event is a state snapshot.
// Binary frames arrive as EventAudio events.
func (c *Client) WatchSession(ctx context.Context, id string, fn func(session.Event)) error {
	wsURL, err := c.wsURL("/ws/sessions/" + id)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("client: dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("client: read event: %w", err)
		}
		if mt == websocket.BinaryMessage {
			fn(session.Event{Type: session.EventAudio, Audio: data})
			continue
		}
		var ev session.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("skipping undecodable event", "error", err)
			continue
		}
		fn(ev)
	}
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
