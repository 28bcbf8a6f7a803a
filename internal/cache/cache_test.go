package cache

import (
	"testing"
	"time"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := New[string, int](4, time.Minute)

	c.Set("a", 1)
	if got, ok := c.Get("a"); !ok || got != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) should miss")
	}

	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get(a) after Remove should miss")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := New[string, string](4, 20*time.Millisecond)

	c.Set("tier", "pro")
	if _, ok := c.Get("tier"); !ok {
		t.Fatal("entry should be readable before expiry")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("tier"); ok {
		t.Fatal("entry should expire after ttl")
	}
}

func TestTTLCacheEvictsOldest(t *testing.T) {
	c := New[int, int](2, time.Minute)

	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)

	if _, ok := c.Get(1); ok {
		t.Fatal("oldest entry should be evicted at capacity")
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}
