package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

type wsConn struct {
	conn      *websocket.Conn
	userID    int64
	writeWait time.Duration

	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, userID int64, writeWait time.Duration) *wsConn {
	return &wsConn{
		conn:      c,
		userID:    userID,
		writeWait: writeWait,
		sendMu:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes one text frame. Writers are serialized; a send to a closed
// connection fails fast instead of waiting for the lock.
func (c *wsConn) SendRaw(data []byte) error {
	select {
	case c.sendMu <- struct{}{}:
	case <-c.closed:
		return errConnClosed
	}
	defer func() { <-c.sendMu }()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) UserID() int64 { return c.userID }
