package cache

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *clock) {
	clk := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a missing")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("a should survive, got %q %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("categories", "x")
	c.Set("methods", "y")

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("methods", "z") // refreshes expiry

	clk.t = clk.t.Add(45 * time.Second)
	if _, ok := c.Get("categories"); ok {
		t.Fatalf("expired entry returned")
	}
	if v, ok := c.Get("methods"); !ok || v != "z" {
		t.Fatalf("refreshed entry lost: %q %v", v, ok)
	}

	clk.t = clk.t.Add(time.Hour)
	c.Set("fresh", "f")
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a not deleted")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("clear left %d entries", c.Size())
	}
	c.Set("c", "3")
	if v, _ := c.Get("c"); v != "3" {
		t.Fatalf("cache unusable after clear")
	}
}

func TestManagerSweep(t *testing.T) {
	c, clk := newTestCache(10, time.Second)
	c.Set("a", "1")
	m := NewManager(nil)
	m.Register(c)

	clk.t = clk.t.Add(2 * time.Second)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop() // second stop is a no-op
}
