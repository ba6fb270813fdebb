package connection

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eventhub/internal/config"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebsocketTransport writes text frames to a gorilla websocket connection.
// Only the write pump writes data frames; Close may race with it.
type WebsocketTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
	closeOnce sync.Once
}

func NewWebsocketTransport(conn *websocket.Conn, writeWait time.Duration) *WebsocketTransport {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &WebsocketTransport{conn: conn, writeWait: writeWait}
}

func (t *WebsocketTransport) WriteFrame(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebsocketTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *WebsocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.writeWait),
		)
		err = t.conn.Close()
	})
	return err
}

// ReadPump reads messages until the peer goes away or stops answering pings.
// Every message resets the read deadline and is passed to onMessage.
func ReadPump(conn *websocket.Conn, cfg config.ConnectionConfig, onMessage func(data []byte)) error {
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	if cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(cfg.MaxMessageBytes)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		onMessage(data)
	}
}
