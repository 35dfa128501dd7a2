package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultCapacity 内存缓存默认条目上限
	DefaultCapacity = 1000
	sweepInterval   = time.Minute
)

// memoryNode LRU 双向链表节点；head 为最近使用，tail 为最久未使用
type memoryNode struct {
	key       string
	value     string
	expiresAt time.Time // 零值表示永不过期
	prev      *memoryNode
	next      *memoryNode
}

// MemoryStore 进程内 LRU 缓存。
// 条目数达到容量时淘汰尾部；Set 时按间隔清扫过期条目，读取时也会惰性淘汰。
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]*memoryNode
	head       *memoryNode
	tail       *memoryNode
	capacity   int
	now        Clock
	defaultTTL time.Duration
	lastSweep  time.Time
	closed     bool
}

// MemoryOption 内存缓存选项
type MemoryOption func(*MemoryStore)

// WithCapacity 设置条目上限；n <= 0 时使用 DefaultCapacity
func WithCapacity(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// NewMemoryStore 创建内存缓存；clock 为 nil 时使用 time.Now。
func NewMemoryStore(defaultTTL time.Duration, clock Clock, opts ...MemoryOption) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	m := &MemoryStore{
		items:      make(map[string]*memoryNode),
		capacity:   DefaultCapacity,
		now:        clock,
		defaultTTL: defaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = clock()
	return m
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (n *memoryNode) expired(now time.Time) bool {
	return !n.expiresAt.IsZero() && !now.Before(n.expiresAt)
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	node, ok := m.items[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if node.expired(m.now()) {
		m.drop(node)
		return "", ErrCacheMiss
	}
	m.moveToHead(node)
	return node.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	now := m.now()
	if now.Sub(m.lastSweep) >= sweepInterval {
		m.sweep(now)
	}

	if node, ok := m.items[key]; ok {
		node.value = value
		node.expiresAt = m.deadline(ttl)
		m.moveToHead(node)
		return nil
	}

	if len(m.items) >= m.capacity {
		m.sweep(now)
	}
	for len(m.items) >= m.capacity {
		m.drop(m.tail)
	}

	node := &memoryNode{key: key, value: value, expiresAt: m.deadline(ttl)}
	m.items[key] = node
	m.addToHead(node)
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if node, ok := m.items[key]; ok {
		node.expiresAt = m.deadline(ttl)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		if node, ok := m.items[k]; ok {
			m.drop(node)
		}
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Len 返回当前条目数（含尚未清扫的过期条目）
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = map[string]*memoryNode{}
	m.head, m.tail = nil, nil
	return nil
}

// sweep 清除全部过期条目，调用方持有锁
func (m *MemoryStore) sweep(now time.Time) {
	for node := m.tail; node != nil; {
		prev := node.prev
		if node.expired(now) {
			m.drop(node)
		}
		node = prev
	}
	m.lastSweep = now
}

func (m *MemoryStore) drop(node *memoryNode) {
	m.unlink(node)
	delete(m.items, node.key)
}

func (m *MemoryStore) addToHead(node *memoryNode) {
	node.prev = nil
	node.next = m.head
	if m.head != nil {
		m.head.prev = node
	}
	m.head = node
	if m.tail == nil {
		m.tail = node
	}
}

func (m *MemoryStore) unlink(node *memoryNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		m.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		m.tail = node.prev
	}
	node.prev, node.next = nil, nil
}

func (m *MemoryStore) moveToHead(node *memoryNode) {
	if node == m.head {
		return
	}
	m.unlink(node)
	m.addToHead(node)
}
