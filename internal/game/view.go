package game

// Update 推送给单个连接的完整视图
type Update struct {
	InGame bool      `json:"inGame"`
	Game   *GameView `json:"game,omitempty"`
}

// GameView 按观察者视角过滤后的游戏视图
type GameView struct {
	GameCode string       `json:"gameCode"`
	Players  []PlayerView `json:"players"`
	Events   []string     `json:"events"`
	InPlay   bool         `json:"inPlay"`
	Revealed bool         `json:"revealed"`
	Clue     string       `json:"clue,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Answer   *Answer      `json:"answer,omitempty"`
	Article  *Article     `json:"article,omitempty"`
	Username string       `json:"username"`
}

// PlayerView 玩家公开信息：词条内容收敛为"是否已提交"
type PlayerView struct {
	Name       string `json:"name"`
	IsGuesser  bool   `json:"isGuesser"`
	HasArticle bool   `json:"hasArticle"`
}

// ProjectView 纯函数：原始状态 + 观察者 -> 视角过滤后的视图
// 过滤规则：
//   - 其他玩家的词条内容不可见，只暴露是否已提交
//   - 观察者自己的词条原样返回
//   - 线索（谜底词条标题）在回合进行中即可见
//   - 谜底归属只在揭晓后可见
func ProjectView(s *RoomState, viewer string) *Update {
	if s == nil {
		return &Update{InGame: false}
	}

	view := &GameView{
		GameCode: s.Code,
		Players:  make([]PlayerView, len(s.Players)),
		Events:   s.Events,
		InPlay:   s.Phase == PhaseInPlay,
		Revealed: s.Phase == PhaseRevealed,
		Options:  s.Options,
		Username: viewer,
	}

	for i, p := range s.Players {
		view.Players[i] = PlayerView{
			Name:       p.Name,
			IsGuesser:  p.Name == s.Guesser,
			HasArticle: p.Article != nil,
		}
		if p.Name == viewer {
			view.Article = p.Article
		}
	}

	if s.Answer != nil {
		view.Clue = s.Answer.Article.Name
		if s.Phase == PhaseRevealed {
			view.Answer = &Answer{Username: s.Answer.Username, Article: s.Answer.Article}
		}
	}

	return &Update{InGame: true, Game: view}
}
