package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

// Picker 随机选择接口
// 抽象出来便于测试注入确定性序列；选中概率必须对候选列表均匀
type Picker interface {
	// Pick 返回 [0, n) 内的一个下标，n 必须大于0
	Pick(n int) int
}

// lockedPicker 基于math/rand的默认实现，使用crypto/rand种子
// 种子来自系统熵源，客户端无法预测选择结果
type lockedPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPicker 创建默认随机选择器
func NewPicker() Picker {
	return &lockedPicker{rnd: rand.New(rand.NewSource(newSeed()))}
}

// NewSeededPicker 创建指定种子的选择器（测试用）
func NewSeededPicker(seed int64) Picker {
	return &lockedPicker{rnd: rand.New(rand.NewSource(seed))}
}

func (p *lockedPicker) Pick(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Intn(n)
}

// newSeed 从crypto/rand生成高熵种子
func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// 熵源不可用时退化为固定种子，仅影响随机性不影响正确性
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
