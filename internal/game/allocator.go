package game

import (
	"sync"

	hashids "github.com/speps/go-hashids/v2"
	"github.com/wfunc/wiki-guess/internal/errors"
)

// CodeAllocator 房间码分配器
// 内部计数器单调递增，经hashids可逆编码生成短码；
// 计数器自增与开放集合写入在同一把锁内完成，并发分配不会重复，
// 且历史上发出过的码不会再分配给另一个存活房间
type CodeAllocator struct {
	mu   sync.Mutex
	next int64
	open map[string]struct{}
	h    *hashids.HashID
}

// NewCodeAllocator 创建房间码分配器
func NewCodeAllocator(salt string, minLength int, alphabet string) (*CodeAllocator, error) {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength
	if alphabet != "" {
		data.Alphabet = alphabet
	}

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate, "房间码编码器初始化失败")
	}

	return &CodeAllocator{
		open: make(map[string]struct{}),
		h:    h,
	}, nil
}

// Allocate 分配一个新的房间码并记录为开放状态
func (a *CodeAllocator) Allocate() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	code, err := a.h.EncodeInt64([]int64{a.next})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrUnknown, "房间码编码失败")
	}
	a.next++
	a.open[code] = struct{}{}

	return code, nil
}

// Exists 房间码是否处于开放状态
func (a *CodeAllocator) Exists(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.open[code]
	return ok
}

// Close 关闭房间码
func (a *CodeAllocator) Close(code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.open[code]; !ok {
		return errors.Newf(errors.ErrGameNotFound, "房间码未开放: %s", code)
	}
	delete(a.open, code)

	return nil
}

// OpenCount 当前开放房间码数量
func (a *CodeAllocator) OpenCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}
