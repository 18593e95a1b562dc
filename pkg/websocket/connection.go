package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"TTSCurator/pkg/logger"
)

func (h *Hub) upgrader() websocket.Upgrader {
	allowed := h.config.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// Serve 升级HTTP连接并订阅 group，initial 非空时作为第一条消息发送
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, group string, initial *Message) error {
	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		ID:    uuid.NewString(),
		Group: group,
		Conn:  conn,
		Send:  make(chan []byte, h.config.MessageBufferSize),
		Hub:   h,
	}
	if initial != nil {
		initial.Group = group
		if initial.Timestamp == 0 {
			initial.Timestamp = time.Now().Unix()
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(initial); err != nil {
			conn.Close()
			return err
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump 只处理控制帧，客户端消息被丢弃
func (c *Connection) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
