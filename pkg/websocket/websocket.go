package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"TTSCurator/pkg/logger"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Group     string `json:"group,omitempty"`
}

// Connection 表示一个订阅了某个组的WebSocket连接
type Connection struct {
	ID    string
	Group string
	Conn  *websocket.Conn
	Send  chan []byte
	Hub   *Hub
}

// Config WebSocket配置
type Config struct {
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 消息缓冲区大小
	MessageBufferSize int
	// 最大消息大小
	MaxMessageSize int64
	// 允许的 Origin，为空时不校验
	AllowedOrigins []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 60 * time.Second,
		MessageBufferSize: 32,
		MaxMessageSize:    4096,
	}
}

// Hub 管理所有WebSocket连接，按组（例如 project:1）分发消息
type Hub struct {
	config *Config

	mu     sync.RWMutex
	groups map[string]map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *Message
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub 创建并启动 Hub
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	h := &Hub{
		config:     config,
		groups:     make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			set, ok := h.groups[conn.Group]
			if !ok {
				set = make(map[*Connection]struct{})
				h.groups[conn.Group] = set
			}
			set[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.remove(conn)
		case msg := <-h.broadcast:
			h.sendToGroup(msg)
		case <-h.done:
			h.mu.Lock()
			for _, set := range h.groups {
				for conn := range set {
					close(conn.Send)
				}
			}
			h.groups = make(map[string]map[*Connection]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.groups[conn.Group]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	close(conn.Send)
	if len(set) == 0 {
		delete(h.groups, conn.Group)
	}
}

func (h *Hub) sendToGroup(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("websocket marshal failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	var slow []*Connection
	for conn := range h.groups[msg.Group] {
		select {
		case conn.Send <- data:
		default:
			// 慢消费者直接断开
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()
	for _, conn := range slow {
		h.remove(conn)
	}
}

// Publish 向组内所有连接推送消息，不阻塞调用方
func (h *Hub) Publish(group, msgType string, data any) {
	msg := &Message{Type: msgType, Data: data, Timestamp: time.Now().Unix(), Group: group}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		logger.Warn("websocket broadcast queue full", zap.String("group", group))
	}
}

// GroupConnections 返回组内连接数
func (h *Hub) GroupConnections(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Close 关闭 Hub 及所有连接
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
