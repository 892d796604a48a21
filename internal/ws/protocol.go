package ws

import (
	"encoding/json"

	"github.com/wfunc/wiki-guess/internal/game"
)

// Message WebSocket消息封装
type Message struct {
	Type      string          `json:"type"`           // 消息类型
	Data      json.RawMessage `json:"data,omitempty"` // 消息数据
	Timestamp int64           `json:"timestamp"`      // 时间戳
}

// MessageType 消息类型
const (
	// 客户端命令
	MessageTypeCreateGame    = "create_game"
	MessageTypeJoinGame      = "join_game"
	MessageTypeLeaveGame     = "leave_game"
	MessageTypeBecomeGuesser = "become_guesser"
	MessageTypeSetArticle    = "set_article"
	MessageTypeRemoveArticle = "remove_article"
	MessageTypeStartRound    = "start_round"
	MessageTypeMakeGuess     = "make_guess"
	MessageTypeReset         = "reset"
	MessageTypeRequestState  = "request_state"
	MessageTypeAckPing       = "ack_ping"

	// 服务端推送
	MessageTypeConnected = "connected"
	MessageTypeUpdate    = "update"
	MessageTypeError     = "error"
	MessageTypePing      = "ping"
)

// CreateGamePayload 创建游戏参数
type CreateGamePayload struct {
	Name string `json:"name"`
}

// JoinGamePayload 加入游戏参数
type JoinGamePayload struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// SetArticlePayload 登记词条参数
type SetArticlePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
}

// Article 转换为游戏层词条
func (p *SetArticlePayload) Article() *game.Article {
	return &game.Article{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Extract:     p.Extract,
	}
}

// MakeGuessPayload 提交猜测参数
type MakeGuessPayload struct {
	Target string `json:"target"`
}

// ErrorPayload 错误推送内容
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
