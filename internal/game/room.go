package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/wiki-guess/internal/errors"
	"go.uber.org/zap"
)

// Observer 房间状态观察者
// OnGameUpdated 的实现必须是非阻塞的（投递到缓冲通道等），
// 回调在房间锁内按状态变更顺序依次触发，同一观察者看到的通知顺序即生成顺序
type Observer interface {
	ObserverID() string
	OnGameUpdated(state *RoomState)
}

// subscriber 订阅记录：观察者句柄 + 过期时间
// 过期时间是兜底清理手段，正常退订由连接会话的在场协议负责
type subscriber struct {
	observer Observer
	expiry   time.Time
}

// playerEntry 房间内玩家，按加入顺序保存
type playerEntry struct {
	name    string
	article *Article
}

// Room 游戏房间（单写者）
// 所有状态变更都经过同一把锁串行化，操作要么完整生效要么原样拒绝；
// 规则拒绝不会触发任何状态通知
type Room struct {
	mu     sync.Mutex
	logger *zap.Logger

	code    string
	players []*playerEntry
	guesser string
	phase   Phase
	options []string
	answer  *Answer
	events  []string

	// 订阅管理（基于过期时间的兜底清理）
	subs   map[string]*subscriber
	subTTL time.Duration

	minOptions int
	picker     Picker

	closed  bool
	onEmpty func(code string)
}

// NewRoom 创建房间
// onEmpty 在最后一名玩家离开后于锁外回调，由管理器负责销毁房间并释放房间码
func NewRoom(code string, subTTL time.Duration, minOptions int, picker Picker, logger *zap.Logger, onEmpty func(code string)) *Room {
	return &Room{
		logger:     logger,
		code:       code,
		phase:      PhaseLobby,
		subs:       make(map[string]*subscriber),
		subTTL:     subTTL,
		minOptions: minOptions,
		picker:     picker,
		onEmpty:    onEmpty,
	}
}

// Code 房间码
func (r *Room) Code() string {
	return r.code
}

// AddPlayer 添加玩家
func (r *Room) AddPlayer(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.Newf(errors.ErrGameClosed, "房间已关闭: %s", r.code)
	}
	if r.findPlayer(name) != nil {
		return errors.Newf(errors.ErrPlayerExists, "玩家 %s 已在房间 %s 中", name, r.code)
	}

	r.players = append(r.players, &playerEntry{name: name})
	r.appendEvent(fmt.Sprintf("%s 加入了游戏", name))

	r.logger.Info("玩家加入房间",
		zap.String("game_code", r.code),
		zap.String("player", name),
		zap.Int("player_count", len(r.players)))

	r.notifyLocked()
	return nil
}

// RemovePlayer 移除玩家
// 若被移除的是猜题者，回合退回大厅重新组局；若房间因此为空，触发销毁
func (r *Room) RemovePlayer(name string) error {
	r.mu.Lock()

	p := r.findPlayer(name)
	if p == nil {
		r.mu.Unlock()
		return errors.Newf(errors.ErrPlayerNotFound, "玩家 %s 不在房间 %s 中", name, r.code)
	}

	for i, e := range r.players {
		if e == p {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
	r.appendEvent(fmt.Sprintf("%s 离开了游戏", name))

	if r.guesser == name {
		r.guesser = ""
		// 猜题者离开，本回合作废，退回大厅
		if r.phase != PhaseLobby {
			r.phase = PhaseLobby
			r.options = nil
			r.answer = nil
			r.appendEvent("猜题者离开，回合已取消")
		}
	}

	empty := len(r.players) == 0
	if empty {
		r.closed = true
	}

	r.logger.Info("玩家离开房间",
		zap.String("game_code", r.code),
		zap.String("player", name),
		zap.Int("player_count", len(r.players)))

	if !empty {
		r.notifyLocked()
	}
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(r.code)
	}
	return nil
}

// SetGuesser 指定猜题者（仅大厅阶段）
func (r *Room) SetGuesser(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return errors.Newf(errors.ErrWrongPhase, "当前阶段 %s 不能更换猜题者", r.phase)
	}
	if r.findPlayer(name) == nil {
		return errors.Newf(errors.ErrPlayerNotFound, "玩家 %s 不在房间 %s 中", name, r.code)
	}
	if r.guesser == name {
		// 重复指定视为成功，不产生通知
		return nil
	}

	r.guesser = name
	r.appendEvent(fmt.Sprintf("%s 成为猜题者", name))

	r.logger.Info("更换猜题者",
		zap.String("game_code", r.code),
		zap.String("guesser", name))

	r.notifyLocked()
	return nil
}

// SetArticle 登记/撤销玩家的词条，任意阶段均可调整
// article 为 nil 表示撤销；词条内容不进入事件日志
func (r *Room) SetArticle(name string, article *Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findPlayer(name)
	if p == nil {
		return errors.Newf(errors.ErrPlayerNotFound, "玩家 %s 不在房间 %s 中", name, r.code)
	}

	p.article = article

	r.logger.Info("玩家更新词条",
		zap.String("game_code", r.code),
		zap.String("player", name),
		zap.Bool("has_article", article != nil))

	r.notifyLocked()
	return nil
}

// StartRound 开始回合（仅大厅阶段）
// 候选为除猜题者外所有已登记词条的玩家，按加入顺序；谜底从候选中均匀抽取
func (r *Room) StartRound() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return errors.Newf(errors.ErrWrongPhase, "当前阶段 %s 不能开始回合", r.phase)
	}
	if r.guesser == "" {
		return errors.New(errors.ErrNoGuesser)
	}

	var options []string
	for _, p := range r.players {
		if p.name != r.guesser && p.article != nil {
			options = append(options, p.name)
		}
	}
	if len(options) < r.minOptions {
		return errors.Newf(errors.ErrNotEnoughOptions, "候选人数 %d，至少需要 %d", len(options), r.minOptions)
	}

	chosen := options[r.picker.Pick(len(options))]
	r.options = options
	r.answer = &Answer{
		Username: chosen,
		Article:  r.findPlayer(chosen).article,
	}
	r.phase = PhaseInPlay
	r.appendEvent("回合开始，猜题者正在推理神秘词条的主人")

	r.logger.Info("回合开始",
		zap.String("game_code", r.code),
		zap.String("guesser", r.guesser),
		zap.Int("option_count", len(options)))

	r.notifyLocked()
	return nil
}

// MakeGuess 猜题者提交猜测
// 猜测只记入事件日志，谜底在开局时已固定，无论猜中与否都进入揭晓阶段
func (r *Room) MakeGuess(guesser, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseInPlay {
		return errors.Newf(errors.ErrWrongPhase, "当前阶段 %s 不能提交猜测", r.phase)
	}
	if guesser != r.guesser {
		return errors.Newf(errors.ErrNotGuesser, "%s 不是猜题者", guesser)
	}
	if !contains(r.options, target) {
		return errors.Newf(errors.ErrInvalidOption, "%s 不在候选列表中", target)
	}

	r.phase = PhaseRevealed
	r.appendEvent(fmt.Sprintf("%s 猜测神秘词条属于 %s", guesser, target))
	if target == r.answer.Username {
		r.appendEvent(fmt.Sprintf("猜中了！《%s》确实是 %s 的词条", r.answer.Article.Name, r.answer.Username))
	} else {
		r.appendEvent(fmt.Sprintf("没猜中，《%s》其实是 %s 的词条", r.answer.Article.Name, r.answer.Username))
	}

	r.logger.Info("猜测已提交",
		zap.String("game_code", r.code),
		zap.String("guesser", guesser),
		zap.String("target", target),
		zap.Bool("correct", target == r.answer.Username))

	r.notifyLocked()
	return nil
}

// Reset 重置回合（仅揭晓阶段）
// 清除谜底玩家的词条登记，迫使其下回合提交新词条
func (r *Room) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseRevealed {
		return errors.Newf(errors.ErrWrongPhase, "当前阶段 %s 不能重置回合", r.phase)
	}

	if p := r.findPlayer(r.answer.Username); p != nil {
		p.article = nil
	}
	r.guesser = ""
	r.options = nil
	r.answer = nil
	r.phase = PhaseLobby
	r.appendEvent("回合结束，回到大厅")

	r.logger.Info("回合重置", zap.String("game_code", r.code))

	r.notifyLocked()
	return nil
}

// Subscribe 订阅状态变更，重复订阅刷新过期时间
func (r *Room) Subscribe(observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[observer.ObserverID()] = &subscriber{
		observer: observer,
		expiry:   time.Now().Add(r.subTTL),
	}
}

// Unsubscribe 取消订阅
func (r *Room) Unsubscribe(observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, observerID)
}

// State 获取当前状态快照
func (r *Room) State() *RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SubscriberCount 当前订阅者数量
func (r *Room) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// findPlayer 按名字查找玩家
func (r *Room) findPlayer(name string) *playerEntry {
	for _, p := range r.players {
		if p.name == name {
			return p
		}
	}
	return nil
}

// appendEvent 追加事件日志
func (r *Room) appendEvent(event string) {
	r.events = append(r.events, event)
}

// snapshotLocked 构建状态快照，须持锁调用
func (r *Room) snapshotLocked() *RoomState {
	players := make([]PlayerState, len(r.players))
	for i, p := range r.players {
		players[i] = PlayerState{Name: p.name, Article: p.article}
	}

	var answer *Answer
	if r.answer != nil {
		answer = &Answer{Username: r.answer.Username, Article: r.answer.Article}
	}

	return &RoomState{
		Code:    r.code,
		Players: players,
		Guesser: r.guesser,
		Phase:   r.phase,
		Options: append([]string(nil), r.options...),
		Answer:  answer,
		Events:  append([]string(nil), r.events...),
	}
}

// notifyLocked 通知所有存活订阅者，顺带清理过期订阅，须持锁调用
func (r *Room) notifyLocked() {
	state := r.snapshotLocked()
	now := time.Now()

	for id, sub := range r.subs {
		if sub.expiry.Before(now) {
			delete(r.subs, id)
			r.logger.Debug("订阅过期，已清理",
				zap.String("game_code", r.code),
				zap.String("observer_id", id))
			continue
		}
		sub.observer.OnGameUpdated(state)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
