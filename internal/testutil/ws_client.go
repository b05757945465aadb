package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/slash-backend/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a sync-channel client for tests. Incoming frames are decoded on
// a background goroutine; read errors end the stream.
type WSClient struct {
	t      *testing.T
	conn   *gorillaWS.Conn
	inbox  chan *websocket.Message
	closed chan struct{}
	once   sync.Once
	wmu    sync.Mutex
}

// NewWSClient dials url and starts reading. The connection is closed on test
// cleanup.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	c := &WSClient{
		t:      t,
		conn:   conn,
		inbox:  make(chan *websocket.Message, 100),
		closed: make(chan struct{}),
	}
	go c.read()
	t.Cleanup(c.Close)

	return c
}

func (c *WSClient) read() {
	defer close(c.inbox)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case c.inbox <- &msg:
		case <-c.closed:
			return
		}
	}
}

func (c *WSClient) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.wmu.Lock()
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.wmu.Unlock()
		c.conn.Close()
	})
}

// Ping sends a PING message; the server answers with PONG.
func (c *WSClient) Ping() {
	c.t.Helper()

	data, err := json.Marshal(websocket.Message{Type: websocket.MessageTypePing, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		c.t.Fatalf("failed to marshal ping: %v", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(gorillaWS.TextMessage, data); err != nil {
		c.t.Fatalf("failed to send ping: %v", err)
	}
}

// ExpectMessage returns the next message of msgType, skipping others.
func (c *WSClient) ExpectMessage(msgType websocket.MessageType, timeout time.Duration) *websocket.Message {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.inbox:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("timeout waiting for message type %s", msgType)
		}
	}
}

// ExpectPayload waits for msgType and decodes its payload into v.
func (c *WSClient) ExpectPayload(msgType websocket.MessageType, v interface{}, timeout time.Duration) {
	c.t.Helper()

	msg := c.ExpectMessage(msgType, timeout)
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.t.Fatalf("failed to decode %s payload: %v", msgType, err)
	}
}

// ExpectNoMessage fails if anything arrives within timeout.
func (c *WSClient) ExpectNoMessage(timeout time.Duration) {
	c.t.Helper()

	select {
	case msg, ok := <-c.inbox:
		if ok {
			c.t.Fatalf("unexpected message received: %s", msg.Type)
		}
	case <-time.After(timeout):
	}
}
