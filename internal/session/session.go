package session

import (
	"reflect"
	"sync"
	"time"

	"github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/game"
	"go.uber.org/zap"
)

// Sender 推送出口，由传输层实现
// 实现必须是非阻塞的：投递失败由传输层自行处理，不回传到会话层
type Sender interface {
	Push(connID string, update *game.Update)
	PushError(connID string, code int, message string)
	Ping(connID string)
}

// Session 连接会话（单写者）
// 一个存活连接对应一个会话：持有连接身份、至多一个房间的成员关系、
// 在场状态；把客户端命令翻译为房间调用，并把房间通知投影后推给客户端
type Session struct {
	id     string
	rooms  *game.RoomManager
	sender Sender
	logger *zap.Logger
	grace  time.Duration

	// onDestroy 销毁后回调，由管理器负责从索引中摘除
	onDestroy func(id string)

	mu                 sync.Mutex
	username           string
	gameCode           string
	room               *game.Room
	lastDisconnectedAt time.Time
	cleanupTimer       *time.Timer
	lastView           *game.Update
	destroyed          bool

	// 房间通知经缓冲通道进入本会话的顺序处理循环
	notifyCh chan *game.RoomState
}

func newSession(id string, rooms *game.RoomManager, sender Sender, grace time.Duration, logger *zap.Logger, onDestroy func(id string)) *Session {
	s := &Session{
		id:        id,
		rooms:     rooms,
		sender:    sender,
		logger:    logger,
		grace:     grace,
		onDestroy: onDestroy,
		notifyCh:  make(chan *game.RoomState, 16),
	}
	go s.notifyLoop()
	return s
}

// ID 连接标识
func (s *Session) ID() string {
	return s.id
}

// ObserverID 实现game.Observer
func (s *Session) ObserverID() string {
	return s.id
}

// OnGameUpdated 实现game.Observer
// 在房间锁内被调用，必须立即返回：状态进缓冲通道，满时丢弃最旧的快照
// （快照是全量状态，后到者覆盖先到者的信息量）
func (s *Session) OnGameUpdated(state *game.RoomState) {
	select {
	case s.notifyCh <- state:
	default:
		select {
		case <-s.notifyCh:
		default:
		}
		select {
		case s.notifyCh <- state:
		default:
		}
	}
}

// notifyLoop 顺序处理房间通知：投影、去重、推送
func (s *Session) notifyLoop() {
	for state := range s.notifyCh {
		s.mu.Lock()
		if s.destroyed || s.gameCode == "" || state.Code != s.gameCode {
			s.mu.Unlock()
			continue
		}
		view := game.ProjectView(state, s.username)
		if reflect.DeepEqual(view, s.lastView) {
			s.mu.Unlock()
			continue
		}
		s.lastView = view
		s.mu.Unlock()

		s.sender.Push(s.id, view)
	}
}

// CreateGame 创建新游戏并以name身份加入
func (s *Session) CreateGame(name string) error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return errors.New(errors.ErrSessionGone)
	}
	if s.gameCode != "" {
		return errors.Newf(errors.ErrAlreadyInGame, "当前游戏: %s", s.gameCode)
	}
	if name == "" {
		return errors.New(errors.ErrInvalidParam, "玩家名不能为空")
	}

	room, err := s.rooms.CreateRoom()
	if err != nil {
		return err
	}

	return s.joinLocked(room, name)
}

// JoinGame 加入指定房间码的游戏
func (s *Session) JoinGame(name, code string) error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return errors.New(errors.ErrSessionGone)
	}
	if s.gameCode != "" {
		return errors.Newf(errors.ErrAlreadyInGame, "当前游戏: %s", s.gameCode)
	}
	if name == "" {
		return errors.New(errors.ErrInvalidParam, "玩家名不能为空")
	}
	if code == "" {
		return errors.New(errors.ErrInvalidParam, "房间码不能为空")
	}

	room, err := s.rooms.GetRoom(code)
	if err != nil {
		return err
	}

	return s.joinLocked(room, name)
}

// joinLocked 先订阅再加入，保证加入产生的首次通知能送达本会话
func (s *Session) joinLocked(room *game.Room, name string) error {
	room.Subscribe(s)
	s.username = name
	s.gameCode = room.Code()
	s.room = room

	if err := room.AddPlayer(name); err != nil {
		room.Unsubscribe(s.id)
		s.username = ""
		s.gameCode = ""
		s.room = nil
		return err
	}

	s.logger.Info("连接加入游戏",
		zap.String("conn_id", s.id),
		zap.String("game_code", room.Code()),
		zap.String("player", name))

	return nil
}

// LeaveGame 离开当前游戏
func (s *Session) LeaveGame() error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameCode == "" {
		return errors.New(errors.ErrNotInGame)
	}

	s.leaveLocked()
	return nil
}

// leaveLocked 先退订（离开者不再收到本房间通知），再从房间移除
func (s *Session) leaveLocked() {
	room, name := s.room, s.username
	room.Unsubscribe(s.id)
	if err := room.RemovePlayer(name); err != nil {
		// 玩家可能已被其他路径移除，维护操作保持幂等
		s.logger.Debug("移除玩家失败",
			zap.String("conn_id", s.id),
			zap.String("player", name),
			zap.Error(err))
	}

	s.logger.Info("连接离开游戏",
		zap.String("conn_id", s.id),
		zap.String("game_code", s.gameCode),
		zap.String("player", name))

	s.username = ""
	s.gameCode = ""
	s.room = nil
	s.lastView = &game.Update{InGame: false}
	s.sender.Push(s.id, s.lastView)
}

// BecomeGuesser 成为猜题者
func (s *Session) BecomeGuesser() error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomLocked()
	if err != nil {
		return err
	}
	return room.SetGuesser(s.username)
}

// SetArticle 登记词条
func (s *Session) SetArticle(article *game.Article) error {
	s.touch()

	if article == nil || article.ID == "" || article.Name == "" {
		return errors.New(errors.ErrInvalidParam, "词条字段不完整")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomLocked()
	if err != nil {
		return err
	}
	return room.SetArticle(s.username, article)
}

// RemoveArticle 撤销词条
func (s *Session) RemoveArticle() error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomLocked()
	if err != nil {
		return err
	}
	return room.SetArticle(s.username, nil)
}

// StartRound 开始回合
func (s *Session) StartRound() error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomLocked()
	if err != nil {
		return err
	}
	return room.StartRound()
}

// MakeGuess 提交猜测
func (s *Session) MakeGuess(target string) error {
	s.touch()

	if target == "" {
		return errors.New(errors.ErrInvalidParam, "猜测目标不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomLocked()
	if err != nil {
		return err
	}
	return room.MakeGuess(s.username, target)
}

// Reset 重置回合
func (s *Session) Reset() error {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.roomLocked()
	if err != nil {
		return err
	}
	return room.Reset()
}

// RequestState 客户端主动请求最新状态
// 同时刷新订阅过期时间，并作为在场证据取消待执行的清理
func (s *Session) RequestState() {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameCode == "" {
		s.lastView = &game.Update{InGame: false}
		s.sender.Push(s.id, s.lastView)
		return
	}

	s.room.Subscribe(s)
	view := game.ProjectView(s.room.State(), s.username)
	s.lastView = view
	s.sender.Push(s.id, view)
}

// AckPing 客户端保活应答
func (s *Session) AckPing() {
	s.touch()
}

// roomLocked 返回当前绑定房间，未入局时报错，须持锁调用
func (s *Session) roomLocked() (*game.Room, error) {
	if s.destroyed {
		return nil, errors.New(errors.ErrSessionGone)
	}
	if s.gameCode == "" {
		return nil, errors.New(errors.ErrNotInGame)
	}
	return s.room, nil
}

// MarkDisconnected 传输层报告连接断开
// 记录断开时间并调度宽限期后的清理；任何再活跃证据都会取消该清理
func (s *Session) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}

	s.lastDisconnectedAt = time.Now()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
	}
	s.cleanupTimer = time.AfterFunc(s.grace, s.expire)

	s.logger.Debug("连接断开，进入宽限期",
		zap.String("conn_id", s.id),
		zap.Duration("grace", s.grace))
}

// touch 记录再活跃：清除断开时间并取消待执行的清理
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastDisconnectedAt = time.Time{}
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
}

// Connected 当前是否处于连接状态
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed && s.lastDisconnectedAt.IsZero()
}

// expiredLocked 断开时长是否已超过宽限期，须持锁调用
func (s *Session) expiredLocked(now time.Time) bool {
	return !s.lastDisconnectedAt.IsZero() && now.Sub(s.lastDisconnectedAt) >= s.grace
}

// expire 宽限期到点回调；与touch存在竞争，销毁前复核断开状态
func (s *Session) expire() {
	s.mu.Lock()
	if s.destroyed || !s.expiredLocked(time.Now()) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info("连接超过宽限期未恢复，销毁会话",
		zap.String("conn_id", s.id))
	s.Destroy()
}

// Destroy 销毁会话：退出所在游戏、停止定时器、关闭通知循环
// 幂等，可被到期清理、周期清扫和显式关闭重复调用
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true

	if s.gameCode != "" {
		s.leaveLocked()
	}
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
	close(s.notifyCh)
	s.mu.Unlock()

	if s.onDestroy != nil {
		s.onDestroy(s.id)
	}
}
