package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/session"
	"go.uber.org/zap"
)

// PlayHandler 游戏消息处理器
// 把客户端命令路由到对应的连接会话
type PlayHandler struct {
	hub      *Hub
	sessions *session.Manager
	logger   *zap.Logger
}

// NewPlayHandler 创建游戏消息处理器
func NewPlayHandler(hub *Hub, sessions *session.Manager, logger *zap.Logger) *PlayHandler {
	h := &PlayHandler{
		hub:      hub,
		sessions: sessions,
		logger:   logger,
	}

	hub.OnMessage(h.HandleClientMessage)
	hub.OnDisconnect(sessions.OnDisconnected)

	return h
}

// HandleClientMessage 处理客户端消息
func (h *PlayHandler) HandleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Error("解析消息失败",
			zap.String("conn_id", client.ID),
			zap.Error(err))
		h.sendError(client, apperrors.New(apperrors.ErrMessageFormat))
		return
	}

	if msg.Type == "" {
		h.sendError(client, apperrors.New(apperrors.ErrMessageFormat, "消息类型不能为空"))
		return
	}

	h.logger.Debug("收到WebSocket消息",
		zap.String("conn_id", client.ID),
		zap.String("type", msg.Type))

	// 按连接标识取会话；会话已被回收时视为首次接触重建
	s, err := h.sessions.Attach(client.ID)
	if err != nil {
		h.sendError(client, err)
		return
	}

	// 根据消息类型处理
	switch msg.Type {
	case MessageTypeCreateGame:
		var payload CreateGamePayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			h.sendError(client, err)
			return
		}
		err = s.CreateGame(payload.Name)

	case MessageTypeJoinGame:
		var payload JoinGamePayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			h.sendError(client, err)
			return
		}
		err = s.JoinGame(payload.Name, payload.Code)

	case MessageTypeLeaveGame:
		err = s.LeaveGame()

	case MessageTypeBecomeGuesser:
		err = s.BecomeGuesser()

	case MessageTypeSetArticle:
		var payload SetArticlePayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			h.sendError(client, err)
			return
		}
		err = s.SetArticle(payload.Article())

	case MessageTypeRemoveArticle:
		err = s.RemoveArticle()

	case MessageTypeStartRound:
		err = s.StartRound()

	case MessageTypeMakeGuess:
		var payload MakeGuessPayload
		if err := unmarshalPayload(msg.Data, &payload); err != nil {
			h.sendError(client, err)
			return
		}
		err = s.MakeGuess(payload.Target)

	case MessageTypeReset:
		err = s.Reset()

	case MessageTypeRequestState:
		s.RequestState()

	case MessageTypeAckPing:
		s.AckPing()

	default:
		h.logger.Warn("未知消息类型",
			zap.String("conn_id", client.ID),
			zap.String("type", msg.Type))
		h.sendError(client, apperrors.Newf(apperrors.ErrMessageFormat, "不支持的消息类型: %s", msg.Type))
		return
	}

	if err != nil {
		h.sendError(client, err)
	}
}

// unmarshalPayload 解析命令参数
func unmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.New(apperrors.ErrInvalidParam, "缺少命令参数")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	return nil
}

// sendError 推送命令失败
func (h *PlayHandler) sendError(client *Client, err error) {
	code := apperrors.GetCode(err)
	message := err.Error()
	if appErr, ok := err.(*apperrors.AppError); ok {
		message = appErr.Message
		if appErr.Details != "" {
			message = appErr.Message + ": " + appErr.Details
		}
	}
	h.hub.PushError(client.ID, int(code), message)
}

// ServeWS 处理WebSocket升级请求
// 客户端可通过cid参数提供稳定的连接标识，重连时复用同一会话
func ServeWS(hub *Hub, sessions *session.Manager, readBufferSize, writeBufferSize int, logger *zap.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(c *gin.Context) {
		connID := c.Query("cid")
		if connID == "" {
			connID = uuid.New().String()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("WebSocket升级失败",
				zap.String("conn_id", connID),
				zap.Error(err))
			return
		}

		client := NewClient(hub, conn, connID)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()

		// 首次接触即创建会话；重连则取消待执行的清理并立即补发状态
		s, err := sessions.Attach(connID)
		if err != nil {
			hub.PushError(connID, int(apperrors.GetCode(err)), err.Error())
			return
		}
		s.RequestState()
	}
}
