package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Socket is the subset of *websocket.Conn a client writes through.
type Socket interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one connected socket. Writes are serialized because gorilla connections
// support a single concurrent writer.
type Client struct {
	ID   string
	conn Socket

	mu           sync.Mutex
	playerID     string
	playerSecret string
}

func NewClient(id string, conn Socket) *Client {
	return &Client{ID: id, conn: conn}
}

func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) Close() error { return c.conn.Close() }

// SetPlayer attaches a player identity to the socket. Sockets without one are spectators.
func (c *Client) SetPlayer(id, secret string) {
	c.mu.Lock()
	c.playerID, c.playerSecret = id, secret
	c.mu.Unlock()
}

func (c *Client) Player() (id, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.playerSecret
}
