package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/logwell/logwell/internal/domain"
)

const wsWriteWait = 10 * time.Second

type wsFrame struct {
	Type string       `json:"type"`
	Logs []domain.Log `json:"logs"`
}

// WSClient streams log batches over a websocket connection.
type WSClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger
}

// NewWSClient constructs a client wrapper.
func NewWSClient(conn *websocket.Conn, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{conn: conn, log: logger}
}

// SendLogs writes a {"type":"logs"} text frame.
func (c *WSClient) SendLogs(entries []domain.Log) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(wsFrame{Type: "logs", Logs: entries}); err != nil {
		c.log.Warn("websocket send failed", "error", err)
		return err
	}
	return nil
}

// Heartbeat sends a ping control frame.
func (c *WSClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
		c.log.Warn("websocket ping failed", "error", err)
		return err
	}
	return nil
}

// WatchClose reads and discards client frames, calling cancel once the peer
// goes away. It blocks until then.
func (c *WSClient) WatchClose(cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

// Close terminates the connection.
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
