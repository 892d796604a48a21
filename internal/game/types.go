package game

// Phase 回合阶段
type Phase string

const (
	PhaseLobby    Phase = "lobby"    // 大厅（组局中）
	PhaseInPlay   Phase = "in_play"  // 回合进行中
	PhaseRevealed Phase = "revealed" // 谜底已揭晓
)

// Article 玩家提交的词条
// 字段由外部词条查询服务拼装，核心层不校验内容
type Article struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
}

// Answer 回合谜底：被选中的玩家及其词条
type Answer struct {
	Username string   `json:"username"`
	Article  *Article `json:"article"`
}

// PlayerState 快照中的玩家原始状态（未做视角过滤）
type PlayerState struct {
	Name    string
	Article *Article
}

// RoomState 房间状态快照
// 由Room在持锁状态下构建，之后只读；Article指针指向的对象一经提交不再修改
type RoomState struct {
	Code    string
	Players []PlayerState
	Guesser string
	Phase   Phase
	Options []string
	Answer  *Answer
	Events  []string
}

// HasPlayer 快照中是否包含指定玩家
func (s *RoomState) HasPlayer(name string) bool {
	for _, p := range s.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}
