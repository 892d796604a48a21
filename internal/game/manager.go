package game

import (
	"sync"

	"github.com/wfunc/wiki-guess/internal/config"
	"github.com/wfunc/wiki-guess/internal/errors"
	"go.uber.org/zap"
)

// RoomManager 房间管理器
// 按房间码寻址房间实例：创建即登记，玩家清空即销毁并释放房间码
type RoomManager struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	allocator *CodeAllocator
	picker    Picker
	logger    *zap.Logger
	cfg       *config.GameConfig
}

// NewRoomManager 创建房间管理器
func NewRoomManager(cfg *config.GameConfig, logger *zap.Logger) (*RoomManager, error) {
	allocator, err := NewCodeAllocator(cfg.CodeSalt, cfg.CodeMinLength, cfg.CodeAlphabet)
	if err != nil {
		return nil, err
	}

	return &RoomManager{
		rooms:     make(map[string]*Room),
		allocator: allocator,
		picker:    NewPicker(),
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// SetPicker 替换随机选择器（测试用）
func (m *RoomManager) SetPicker(p Picker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.picker = p
}

// CreateRoom 分配房间码并创建房间
func (m *RoomManager) CreateRoom() (*Room, error) {
	code, err := m.allocator.Allocate()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	room := NewRoom(code, m.cfg.SubscriptionTTL, m.cfg.MinOptions, m.picker, m.logger, m.closeRoom)
	m.rooms[code] = room
	m.mu.Unlock()

	m.logger.Info("创建游戏房间",
		zap.String("game_code", code),
		zap.Int("open_rooms", m.OpenRooms()))

	return room, nil
}

// GetRoom 按房间码获取房间
func (m *RoomManager) GetRoom(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, errors.Newf(errors.ErrGameNotFound, "房间码: %s", code)
	}
	return room, nil
}

// Exists 房间码是否对应开放房间
func (m *RoomManager) Exists(code string) bool {
	return m.allocator.Exists(code)
}

// OpenRooms 当前开放房间数
func (m *RoomManager) OpenRooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// closeRoom 销毁空房间并释放房间码
// 由Room在最后一名玩家离开后回调；重复关闭是空操作
func (m *RoomManager) closeRoom(code string) {
	m.mu.Lock()
	_, ok := m.rooms[code]
	delete(m.rooms, code)
	m.mu.Unlock()

	if !ok {
		return
	}

	if err := m.allocator.Close(code); err != nil {
		// 房间码已被释放，维护操作保持幂等
		m.logger.Debug("房间码已释放", zap.String("game_code", code))
	}

	m.logger.Info("游戏房间已销毁",
		zap.String("game_code", code),
		zap.Int("open_rooms", m.OpenRooms()))
}
