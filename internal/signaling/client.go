package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/relaypeer/internal/relay"
)

// welcomeTimeout bounds the wait for the broker's welcome after dialing.
const welcomeTimeout = 10 * time.Second

var ErrNoWelcome = errors.New("broker did not send a welcome")

// Client is an endpoint's connection to the broker.
type Client struct {
	conn     *websocket.Conn
	out      *sender
	identity relay.Identity
}

// Dial connects to the broker at rawURL, e.g. ws://localhost:7420/ws, and
// waits for the identity the broker assigns. A non-empty pin is appended as
// the "pin" query parameter.
func Dial(ctx context.Context, rawURL, pin string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	if pin != "" {
		q := u.Query()
		q.Set("pin", pin)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	deadline := time.Now().Add(welcomeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrNoWelcome, err)
	}
	if msg.Type != MsgTypeWelcome || msg.To == 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: got %q", ErrNoWelcome, msg.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return &Client{
		conn:     conn,
		out:      &sender{conn: conn},
		identity: msg.To,
	}, nil
}

// Identity returns the identity the broker assigned to this endpoint.
func (c *Client) Identity() relay.Identity {
	return c.identity
}

// Send writes msg to the broker. It is safe for concurrent use.
func (c *Client) Send(msg Message) error {
	return c.out.send(msg)
}

// Receive blocks until the next message arrives. Only one goroutine may
// call Receive.
func (c *Client) Receive() (Message, error) {
	var msg Message
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

// Close says goodbye to the broker and closes the connection.
func (c *Client) Close() error {
	_ = c.out.sendClose(websocket.CloseNormalClosure, "")
	return c.conn.Close()
}
