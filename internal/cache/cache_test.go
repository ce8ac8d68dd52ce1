package cache

import (
	"testing"
	"time"
)

func TestCacheHitMiss(t *testing.T) {
	c := New[string, int](4, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected miss on empty cache")
	}

	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok {
		t.Fatalf("expected hit after Put")
	}
	if v != 1 {
		t.Errorf("expected value 1, got %d", v)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[string, int](4, time.Millisecond)
	c.Put("a", 1)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be evicted on lookup, len=%d", c.Len())
	}
}

func TestCacheEvictsLRUTail(t *testing.T) {
	c := New[int, int](2, time.Minute)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3) // evicts key 1

	if _, ok := c.Get(1); ok {
		t.Errorf("expected key 1 to be evicted")
	}
	if _, ok := c.Get(2); !ok {
		t.Errorf("expected key 2 to survive")
	}
	if _, ok := c.Get(3); !ok {
		t.Errorf("expected key 3 to survive")
	}
}

func TestCachePutResetsTTL(t *testing.T) {
	c := New[string, int](4, 20*time.Millisecond)
	c.Put("a", 1)
	time.Sleep(10 * time.Millisecond)
	c.Put("a", 2) // resets expiry
	time.Sleep(15 * time.Millisecond)

	v, ok := c.Get("a")
	if !ok {
		t.Fatalf("expected entry refreshed by second Put to still be live")
	}
	if v != 2 {
		t.Errorf("expected refreshed value 2, got %d", v)
	}
}
