package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/game"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New(errors.ErrNotFound, "客户端未找到")
	ErrSendBufferFull = errors.New(errors.ErrWebSocketSend, "发送缓冲区已满")
)

// Hub WebSocket连接管理中心
// 按连接标识索引客户端；同一标识重连时替换旧连接
// 实现session.Sender：会话层经Hub向客户端推送视图、错误与保活探测
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 注销通道，由读泵在连接断开后投递
	unregister chan *Client

	// 消息处理与断开回调，启动前注入
	messageHandler    func(client *Client, data []byte)
	disconnectHandler func(connID string)

	sendBuffer int
	logger     *zap.Logger
}

// Client WebSocket客户端
type Client struct {
	ID   string          // 连接标识（客户端提供或服务端分配）
	Hub  *Hub            // Hub引用
	Conn *websocket.Conn // WebSocket连接
	Send chan []byte     // 发送通道
}

// NewHub 创建Hub
func NewHub(sendBuffer int, logger *zap.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// OnMessage 设置客户端消息处理器
func (h *Hub) OnMessage(handler func(client *Client, data []byte)) {
	h.messageHandler = handler
}

// OnDisconnect 设置连接断开回调
func (h *Hub) OnDisconnect(handler func(connID string)) {
	h.disconnectHandler = handler
}

// Run 运行Hub
func (h *Hub) Run() {
	for client := range h.unregister {
		h.unregisterClient(client)
	}
}

// Register 注册客户端；同一连接标识的旧连接被替换并关闭
// 同步执行，返回后客户端即可被寻址
func (h *Hub) Register(client *Client) {
	h.clientsMu.Lock()
	old, replaced := h.clients[client.ID]
	h.clients[client.ID] = client
	if replaced {
		close(old.Send)
	}
	h.clientsMu.Unlock()

	if replaced {
		h.logger.Info("连接重连，替换旧客户端",
			zap.String("conn_id", client.ID))
	} else {
		h.logger.Info("WebSocket客户端连接",
			zap.String("conn_id", client.ID))
	}

	// 发送连接成功消息
	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.sendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	current, ok := h.clients[client.ID]
	// 重连替换后旧连接的注销不能摘掉新连接
	if ok && current == client {
		delete(h.clients, client.ID)
		close(client.Send)
	} else {
		ok = false
	}
	h.clientsMu.Unlock()

	if !ok {
		return
	}

	h.logger.Info("WebSocket客户端断开",
		zap.String("conn_id", client.ID))

	if h.disconnectHandler != nil {
		h.disconnectHandler(client.ID)
	}
}

// sendToClient 发送消息给指定客户端
func (h *Hub) sendToClient(connID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	// 持读锁发送：Send通道只会在写锁内被关闭，持读锁期间不会关闭
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("conn_id", connID),
			zap.String("type", message.Type))
		return ErrSendBufferFull
	}
}

// Push 实现session.Sender：推送视图更新
func (h *Hub) Push(connID string, update *game.Update) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("序列化视图失败", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeUpdate,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
	if err := h.sendToClient(connID, msg); err != nil {
		// 投递失败由保活与在场协议兜底，不回传会话层
		h.logger.Debug("视图推送失败",
			zap.String("conn_id", connID),
			zap.Error(err))
	}
}

// PushError 实现session.Sender：推送命令失败
func (h *Hub) PushError(connID string, code int, message string) {
	data, err := json.Marshal(&ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}

	msg := &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
	h.sendToClient(connID, msg)
}

// Ping 实现session.Sender：发送保活探测
func (h *Hub) Ping(connID string) {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now().Unix(),
	}
	h.sendToClient(connID, msg)
}

// OnlineCount 在线连接数
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
