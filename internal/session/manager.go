package session

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/wiki-guess/internal/config"
	"github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/game"
	"go.uber.org/zap"
)

// Manager 连接会话管理器
// 按连接标识寻址会话：首次接触即创建，断线超过宽限期即回收
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	rooms  *game.RoomManager
	sender Sender
	logger *zap.Logger
	cfg    *config.GameConfig

	cancel context.CancelFunc
}

// NewManager 创建会话管理器
func NewManager(cfg *config.GameConfig, rooms *game.RoomManager, sender Sender, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		rooms:    rooms,
		sender:   sender,
		logger:   logger,
		cfg:      cfg,
	}
}

// Attach 获取或创建连接会话
// 已存在的会话视为重连：清除断开状态并取消待执行的清理
func (m *Manager) Attach(connID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[connID]; ok {
		m.mu.Unlock()
		s.touch()
		return s, nil
	}

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, errors.Newf(errors.ErrUnknown, "会话数量已达上限: %d", m.cfg.MaxSessions)
	}

	s := newSession(connID, m.rooms, m.sender, m.cfg.GraceWindow, m.logger, m.removeSession)
	m.sessions[connID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("创建连接会话",
		zap.String("conn_id", connID),
		zap.Int("session_count", total))

	return s, nil
}

// Get 获取已存在的连接会话
func (m *Manager) Get(connID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[connID]
	if !ok {
		return nil, errors.Newf(errors.ErrSessionGone, "连接: %s", connID)
	}
	return s, nil
}

// OnDisconnected 传输层报告连接断开
func (m *Manager) OnDisconnected(connID string) {
	m.mu.RLock()
	s, ok := m.sessions[connID]
	m.mu.RUnlock()

	if ok {
		s.MarkDisconnected()
	}
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start 启动周期任务：断线清扫（兜底）与保活探测
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go m.runSweep(ctx)
	go m.runKeepalive(ctx)
}

// Stop 停止周期任务
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// runSweep 周期清扫超过宽限期的断线会话
// 正常路径是会话自身的到期定时器，这里是防定时器丢失的兜底
func (m *Manager) runSweep(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("停止会话清扫任务")
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

// sweepOnce 执行一轮清扫
func (m *Manager) sweepOnce() {
	now := time.Now()

	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.destroyed && s.expiredLocked(now) {
			expired = append(expired, s)
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, s := range expired {
		m.logger.Info("清扫超时断线会话", zap.String("conn_id", s.ID()))
		s.Destroy()
	}
}

// runKeepalive 周期向所有连接中的客户端发送保活探测
func (m *Manager) runKeepalive(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("停止保活探测任务")
			return
		case <-ticker.C:
			m.mu.RLock()
			ids := make([]string, 0, len(m.sessions))
			for id, s := range m.sessions {
				if s.Connected() {
					ids = append(ids, id)
				}
			}
			m.mu.RUnlock()

			for _, id := range ids {
				m.sender.Ping(id)
			}
		}
	}
}

// removeSession 会话销毁后从索引中摘除
func (m *Manager) removeSession(connID string) {
	m.mu.Lock()
	delete(m.sessions, connID)
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("连接会话已销毁",
		zap.String("conn_id", connID),
		zap.Int("session_count", total))
}
