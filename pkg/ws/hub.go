package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeHello          = "hello"           // 连接建立
	MsgTypeRecalculated   = "recalculated"    // 车辆重算完成
	MsgTypeVehicleDeleted = "vehicle_deleted" // 车辆及其记录已删除
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message WebSocket 消息结构
type Message struct {
	Type      string `json:"type"`
	VehicleID int64  `json:"vehicle_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Client WebSocket 客户端
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	vehicleID int64 // 0 表示订阅全部车辆
}

type envelope struct {
	vehicleID int64
	payload   []byte
}

// Hub WebSocket 连接管理中心，按车辆分发消息
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 运行 Hub，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client connected",
				zap.Int64("vehicle_id", client.vehicleID),
				zap.Int("total_clients", total))
			h.sendHello(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client disconnected", zap.Int("total_clients", total))

		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.vehicleID != 0 && client.vehicleID != env.vehicleID {
					continue
				}
				select {
				case client.send <- env.payload:
				default:
					// 慢消费者，关闭连接
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendHello(client *Client) {
	data, err := json.Marshal(Message{Type: MsgTypeHello, VehicleID: client.vehicleID})
	if err != nil {
		h.logger.Error("Failed to marshal hello message", zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("Failed to send hello, client buffer full")
	}
}

// Publish 向订阅该车辆的客户端发送消息，队列已满时丢弃
func (h *Hub) Publish(vehicleID int64, msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, VehicleID: vehicleID, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.String("type", msgType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- envelope{vehicleID: vehicleID, payload: payload}:
	default:
		h.logger.Warn("WebSocket broadcast queue full, message dropped",
			zap.Int64("vehicle_id", vehicleID),
			zap.String("type", msgType))
	}
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient 创建客户端，vehicleID 为 0 时接收全部车辆的消息
func NewClient(hub *Hub, conn *websocket.Conn, vehicleID int64) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		vehicleID: vehicleID,
	}
}

// Register 注册客户端。Hub 已停止时直接关闭发送队列。
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// ReadPump 读取消息（仅处理 pong 以保持连接）
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump 发送消息与心跳
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
