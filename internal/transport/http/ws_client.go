package http

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// wsClient serializes all writes to one websocket connection through a
// buffered send channel drained by writePump.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
		quit: make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// sendMessage queues one frame; a client that cannot keep up is dropped
// rather than allowed to block the session.
func (c *wsClient) sendMessage(msgType MessageType, payload any) {
	data, err := json.Marshal(outboundMessage{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("ws marshal %s: %v", msgType, err)
		return
	}
	select {
	case <-c.quit:
	case c.send <- data:
	default:
		log.Printf("ws send buffer full, dropping client")
		c.close()
	}
}

func (c *wsClient) sendError(message string) {
	c.sendMessage(MessageTypeError, errorPayload{Message: message})
}
