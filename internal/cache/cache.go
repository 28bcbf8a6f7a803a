package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLCache 是带容量上限和固定过期时间的进程内缓存。
// 所有使用方都通过依赖注入拿到实例，不依赖包级单例。
type TTLCache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// New 创建缓存，最多保留 size 条记录，每条在 ttl 后过期。
func New[K comparable, V any](size int, ttl time.Duration) *TTLCache[K, V] {
	if size <= 0 {
		size = 128
	}
	return &TTLCache[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

// Get 返回缓存值，未命中或已过期时 ok 为 false。
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set 写入缓存，超出容量时淘汰最久未使用的记录。
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Remove 主动失效一条记录。
func (c *TTLCache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Len 返回当前未过期的记录数。
func (c *TTLCache[K, V]) Len() int {
	return c.lru.Len()
}
