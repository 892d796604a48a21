package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/wiki-guess/internal/config"
	apperrors "github.com/wfunc/wiki-guess/internal/errors"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *RoomManager {
	m, err := NewRoomManager(&config.GameConfig{
		CodeSalt:        "test-salt",
		CodeMinLength:   4,
		MinOptions:      2,
		SubscriptionTTL: time.Hour,
	}, zap.NewNop())
	assert.NoError(t, err)
	return m
}

// TestManager_CreateAndGet 测试创建房间后可按码寻址
func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(t)

	room, err := m.CreateRoom()
	assert.NoError(t, err)
	assert.NotEmpty(t, room.Code())
	assert.True(t, m.Exists(room.Code()))
	assert.Equal(t, 1, m.OpenRooms())

	found, err := m.GetRoom(room.Code())
	assert.NoError(t, err)
	assert.Same(t, room, found)
}

// TestManager_GetUnknown 测试未知房间码
func TestManager_GetUnknown(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetRoom("nope")
	assert.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrGameNotFound))
	assert.False(t, m.Exists("nope"))
}

// TestManager_EmptyRoomDestroyed 测试最后一名玩家离开后房间销毁、房间码释放
func TestManager_EmptyRoomDestroyed(t *testing.T) {
	m := newTestManager(t)

	room, err := m.CreateRoom()
	assert.NoError(t, err)
	code := room.Code()

	assert.NoError(t, room.AddPlayer("A"))
	assert.NoError(t, room.RemovePlayer("A"))

	assert.Equal(t, 0, m.OpenRooms())
	assert.False(t, m.Exists(code))
	_, err = m.GetRoom(code)
	assert.True(t, apperrors.Is(err, apperrors.ErrGameNotFound))
}

// TestManager_CodesDistinctAcrossRooms 测试多房间的码互不相同且不复用
func TestManager_CodesDistinctAcrossRooms(t *testing.T) {
	m := newTestManager(t)

	first, err := m.CreateRoom()
	assert.NoError(t, err)
	firstCode := first.Code()

	// 销毁第一个房间
	assert.NoError(t, first.AddPlayer("A"))
	assert.NoError(t, first.RemovePlayer("A"))

	seen := map[string]bool{firstCode: true}
	for i := 0; i < 50; i++ {
		room, err := m.CreateRoom()
		assert.NoError(t, err)
		assert.False(t, seen[room.Code()], "房间码被复用: %s", room.Code())
		seen[room.Code()] = true
	}
}
