package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/wiki-guess/internal/config"
	apperrors "github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/game"
	"go.uber.org/zap"
)

// fakeSender 记录推送内容的测试替身
type fakeSender struct {
	mu      sync.Mutex
	updates map[string][]*game.Update
	errors  map[string][]int
	pings   map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		updates: make(map[string][]*game.Update),
		errors:  make(map[string][]int),
		pings:   make(map[string]int),
	}
}

func (f *fakeSender) Push(connID string, update *game.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[connID] = append(f.updates[connID], update)
}

func (f *fakeSender) PushError(connID string, code int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[connID] = append(f.errors[connID], code)
}

func (f *fakeSender) Ping(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings[connID]++
}

// Last 最近一次推送给该连接的视图
func (f *fakeSender) Last(connID string) *game.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.updates[connID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *fakeSender) PingCount(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings[connID]
}

func testGameConfig() *config.GameConfig {
	return &config.GameConfig{
		CodeSalt:          "test-salt",
		CodeMinLength:     4,
		MinOptions:        2,
		SubscriptionTTL:   time.Hour,
		GraceWindow:       50 * time.Millisecond,
		SweepInterval:     20 * time.Millisecond,
		KeepaliveInterval: 20 * time.Millisecond,
		MaxSessions:       100,
	}
}

func newTestEnv(t *testing.T) (*Manager, *game.RoomManager, *fakeSender) {
	cfg := testGameConfig()
	rooms, err := game.NewRoomManager(cfg, zap.NewNop())
	require.NoError(t, err)
	sender := newFakeSender()
	return NewManager(cfg, rooms, sender, zap.NewNop()), rooms, sender
}

// gameCodeOf 从最近推送的视图中取房间码
func gameCodeOf(t *testing.T, sender *fakeSender, connID string) string {
	update := sender.Last(connID)
	require.NotNil(t, update)
	require.True(t, update.InGame)
	return update.Game.GameCode
}

// TestAttach 测试首次接触创建会话，再次接触复用
func TestAttach(t *testing.T) {
	m, _, _ := newTestEnv(t)

	s1, err := m.Attach("conn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	s2, err := m.Attach("conn-1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.Count())
}

// TestAttach_MaxSessions 测试会话数上限
func TestAttach_MaxSessions(t *testing.T) {
	cfg := testGameConfig()
	cfg.MaxSessions = 2
	rooms, err := game.NewRoomManager(cfg, zap.NewNop())
	require.NoError(t, err)
	m := NewManager(cfg, rooms, newFakeSender(), zap.NewNop())

	_, err = m.Attach("conn-1")
	require.NoError(t, err)
	_, err = m.Attach("conn-2")
	require.NoError(t, err)

	_, err = m.Attach("conn-3")
	assert.Error(t, err)
}

// TestCreateAndJoinGame 测试创建游戏与按码加入
func TestCreateAndJoinGame(t *testing.T) {
	m, rooms, sender := newTestEnv(t)

	s1, err := m.Attach("conn-1")
	require.NoError(t, err)
	require.NoError(t, s1.CreateGame("A"))
	s1.RequestState()

	code := gameCodeOf(t, sender, "conn-1")
	assert.True(t, rooms.Exists(code))

	s2, err := m.Attach("conn-2")
	require.NoError(t, err)
	require.NoError(t, s2.JoinGame("B", code))
	s2.RequestState()

	update := sender.Last("conn-2")
	require.NotNil(t, update)
	assert.True(t, update.InGame)
	assert.Len(t, update.Game.Players, 2)
	assert.Equal(t, "B", update.Game.Username)
}

// TestJoinGameGuards 测试加入游戏的前置校验
func TestJoinGameGuards(t *testing.T) {
	m, _, sender := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)

	assert.True(t, apperrors.Is(s.JoinGame("", "abcd"), apperrors.ErrInvalidParam))
	assert.True(t, apperrors.Is(s.JoinGame("A", ""), apperrors.ErrInvalidParam))
	assert.True(t, apperrors.Is(s.JoinGame("A", "nope"), apperrors.ErrGameNotFound))

	require.NoError(t, s.CreateGame("A"))
	s.RequestState()
	code := gameCodeOf(t, sender, "conn-1")

	// 已在游戏中不能再创建或加入
	assert.True(t, apperrors.Is(s.CreateGame("A"), apperrors.ErrAlreadyInGame))
	assert.True(t, apperrors.Is(s.JoinGame("A", code), apperrors.ErrAlreadyInGame))
}

// TestLeaveGame 测试离开游戏
func TestLeaveGame(t *testing.T) {
	m, rooms, sender := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)
	assert.True(t, apperrors.Is(s.LeaveGame(), apperrors.ErrNotInGame))

	require.NoError(t, s.CreateGame("A"))
	s.RequestState()
	code := gameCodeOf(t, sender, "conn-1")

	require.NoError(t, s.LeaveGame())

	// 离开后收到未入局视图，空房间被销毁
	update := sender.Last("conn-1")
	assert.False(t, update.InGame)
	assert.False(t, rooms.Exists(code))
}

// TestCommandsRequireGame 测试入局前的命令被拒绝
func TestCommandsRequireGame(t *testing.T) {
	m, _, _ := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)

	assert.True(t, apperrors.Is(s.BecomeGuesser(), apperrors.ErrNotInGame))
	assert.True(t, apperrors.Is(s.StartRound(), apperrors.ErrNotInGame))
	assert.True(t, apperrors.Is(s.Reset(), apperrors.ErrNotInGame))
	assert.True(t, apperrors.Is(s.MakeGuess("B"), apperrors.ErrNotInGame))
	assert.True(t, apperrors.Is(s.SetArticle(&game.Article{ID: "Q1", Name: "长城"}), apperrors.ErrNotInGame))
}

// TestSetArticleValidation 测试词条字段校验
func TestSetArticleValidation(t *testing.T) {
	m, _, _ := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)
	require.NoError(t, s.CreateGame("A"))

	assert.True(t, apperrors.Is(s.SetArticle(nil), apperrors.ErrInvalidParam))
	assert.True(t, apperrors.Is(s.SetArticle(&game.Article{Name: "长城"}), apperrors.ErrInvalidParam))
	assert.True(t, apperrors.Is(s.SetArticle(&game.Article{ID: "Q1"}), apperrors.ErrInvalidParam))
	assert.NoError(t, s.SetArticle(&game.Article{ID: "Q1", Name: "长城"}))
	assert.NoError(t, s.RemoveArticle())
}

// TestFullRound 测试一局完整流程经会话层走通
func TestFullRound(t *testing.T) {
	m, _, sender := newTestEnv(t)

	sA, err := m.Attach("conn-a")
	require.NoError(t, err)
	require.NoError(t, sA.CreateGame("A"))
	sA.RequestState()
	code := gameCodeOf(t, sender, "conn-a")

	sB, err := m.Attach("conn-b")
	require.NoError(t, err)
	require.NoError(t, sB.JoinGame("B", code))

	sC, err := m.Attach("conn-c")
	require.NoError(t, err)
	require.NoError(t, sC.JoinGame("C", code))

	require.NoError(t, sA.BecomeGuesser())
	require.NoError(t, sB.SetArticle(&game.Article{ID: "Q1", Name: "长城"}))
	require.NoError(t, sC.SetArticle(&game.Article{ID: "Q2", Name: "故宫"}))
	require.NoError(t, sA.StartRound())

	// 非猜题者的命令被房间规则拒绝
	assert.True(t, apperrors.Is(sB.MakeGuess("C"), apperrors.ErrNotGuesser))

	require.NoError(t, sA.MakeGuess("B"))
	require.NoError(t, sA.Reset())

	sA.RequestState()
	update := sender.Last("conn-a")
	assert.False(t, update.Game.InPlay)
	assert.False(t, update.Game.Revealed)
	assert.Nil(t, update.Game.Answer)
}

// TestReconnectWithinGrace 测试宽限期内重连保留游戏成员身份
func TestReconnectWithinGrace(t *testing.T) {
	m, rooms, sender := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)
	require.NoError(t, s.CreateGame("A"))
	s.RequestState()
	code := gameCodeOf(t, sender, "conn-1")

	m.OnDisconnected("conn-1")
	assert.False(t, s.Connected())

	// 宽限期内重连
	time.Sleep(10 * time.Millisecond)
	s2, err := m.Attach("conn-1")
	require.NoError(t, err)
	assert.Same(t, s, s2)
	assert.True(t, s2.Connected())

	// 等待超过原宽限期，确认清理已被取消
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, m.Count())
	assert.True(t, rooms.Exists(code))

	room, err := rooms.GetRoom(code)
	require.NoError(t, err)
	assert.True(t, room.State().HasPlayer("A"))
}

// TestDisconnectBeyondGrace 测试超过宽限期后会话销毁、玩家被移除
func TestDisconnectBeyondGrace(t *testing.T) {
	m, rooms, sender := newTestEnv(t)

	sA, err := m.Attach("conn-a")
	require.NoError(t, err)
	require.NoError(t, sA.CreateGame("A"))
	sA.RequestState()
	code := gameCodeOf(t, sender, "conn-a")

	sB, err := m.Attach("conn-b")
	require.NoError(t, err)
	require.NoError(t, sB.JoinGame("B", code))

	m.OnDisconnected("conn-b")

	assert.Eventually(t, func() bool {
		return m.Count() == 1
	}, time.Second, 10*time.Millisecond, "超时断线会话应被销毁")

	room, err := rooms.GetRoom(code)
	require.NoError(t, err)
	state := room.State()
	assert.True(t, state.HasPlayer("A"))
	assert.False(t, state.HasPlayer("B"))
}

// TestLastPlayerExpiresDestroysRoom 测试最后一名玩家超时后房间销毁
func TestLastPlayerExpiresDestroysRoom(t *testing.T) {
	m, rooms, sender := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)
	require.NoError(t, s.CreateGame("A"))
	s.RequestState()
	code := gameCodeOf(t, sender, "conn-1")

	m.OnDisconnected("conn-1")

	assert.Eventually(t, func() bool {
		return m.Count() == 0 && !rooms.Exists(code)
	}, time.Second, 10*time.Millisecond, "空房间应随最后一名玩家超时销毁")
}

// TestSweepBackstop 测试周期清扫兜底回收
func TestSweepBackstop(t *testing.T) {
	m, _, _ := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	s, err := m.Attach("conn-1")
	require.NoError(t, err)

	// 模拟到期定时器丢失：只记录断开时间，不调度清理
	s.mu.Lock()
	s.lastDisconnectedAt = time.Now()
	s.mu.Unlock()

	assert.Eventually(t, func() bool {
		return m.Count() == 0
	}, time.Second, 10*time.Millisecond, "清扫任务应回收超时会话")
}

// TestKeepalive 测试保活探测只发给连接中的会话
func TestKeepalive(t *testing.T) {
	m, _, sender := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	s1, err := m.Attach("conn-1")
	require.NoError(t, err)
	_, err = m.Attach("conn-2")
	require.NoError(t, err)

	m.OnDisconnected("conn-1")

	assert.Eventually(t, func() bool {
		return sender.PingCount("conn-2") >= 2
	}, time.Second, 10*time.Millisecond)

	// 应答作为在场证据，取消待执行的清理
	s1.AckPing()
	assert.True(t, s1.Connected())
}

// TestNotifyPropagation 测试房间通知经会话投影后推送
func TestNotifyPropagation(t *testing.T) {
	m, _, sender := newTestEnv(t)

	sA, err := m.Attach("conn-a")
	require.NoError(t, err)
	require.NoError(t, sA.CreateGame("A"))
	sA.RequestState()
	code := gameCodeOf(t, sender, "conn-a")

	sB, err := m.Attach("conn-b")
	require.NoError(t, err)
	require.NoError(t, sB.JoinGame("B", code))
	require.NoError(t, sB.SetArticle(&game.Article{ID: "Q1", Name: "长城"}))

	// B登记词条后，A的视图只看到"已提交"，看不到内容
	assert.Eventually(t, func() bool {
		update := sender.Last("conn-a")
		if update == nil || update.Game == nil {
			return false
		}
		for _, p := range update.Game.Players {
			if p.Name == "B" && p.HasArticle {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	update := sender.Last("conn-a")
	assert.Nil(t, update.Game.Article)
}

// TestDestroyIdempotent 测试会话销毁幂等
func TestDestroyIdempotent(t *testing.T) {
	m, _, _ := newTestEnv(t)

	s, err := m.Attach("conn-1")
	require.NoError(t, err)
	require.NoError(t, s.CreateGame("A"))

	s.Destroy()
	s.Destroy()
	assert.Equal(t, 0, m.Count())

	// 销毁后的命令被拒绝
	assert.True(t, apperrors.Is(s.CreateGame("A"), apperrors.ErrSessionGone))
}
