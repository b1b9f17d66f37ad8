package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewLRUCache[string](10, time.Minute).WithClock(clock.now)
	c.Set("k", "v")

	clock.t = clock.t.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}
	clock.t = clock.t.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("fixed TTL entry should expire despite reads")
	}
}

func TestSlidingLRUCache_ReadExtendsLifetime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewSlidingLRUCache[string](10, time.Minute).WithClock(clock.now)
	c.Set("k", "v")

	for i := 0; i < 5; i++ {
		clock.t = clock.t.Add(50 * time.Second)
		if _, ok := c.Get("k"); !ok {
			t.Fatalf("sliding entry expired after read %d", i)
		}
	}

	clock.t = clock.t.Add(61 * time.Second)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", c.Size())
	}
}

func TestManager_CleanNow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewLRUCache[int](10, time.Second).WithClock(clock.now)
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager(nil)
	m.Register(c)
	clock.t = clock.t.Add(2 * time.Second)

	if n := m.CleanNow(); n != 2 {
		t.Fatalf("CleanNow() = %d, want 2", n)
	}

	m.StartCleanup(context.Background(), time.Hour)
	m.Stop()
}
