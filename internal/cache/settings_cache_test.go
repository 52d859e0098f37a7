package cache

import (
	"testing"
	"time"
)

func TestGet_MissesBeforeAnySet(t *testing.T) {
	c := NewScalarCache(time.Minute)
	if _, ok := c.Get(); ok {
		t.Fatalf("Get() on an empty cache should miss")
	}
}

func TestGet_HitsWithinTTL(t *testing.T) {
	c := NewScalarCache(time.Minute)
	c.Set(42)

	got, ok := c.Get()
	if !ok || got != 42 {
		t.Fatalf("Get() = %d, %v, want 42, true", got, ok)
	}
}

func TestGet_MissesAfterTTLExpires(t *testing.T) {
	c := NewScalarCache(time.Millisecond)
	c.Set(42)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(); ok {
		t.Fatalf("Get() should miss once the TTL has elapsed")
	}
}

func TestInvalidate_ForcesTheNextGetToMiss(t *testing.T) {
	c := NewScalarCache(time.Minute)
	c.Set(42)
	c.Invalidate()

	if _, ok := c.Get(); ok {
		t.Fatalf("Get() should miss immediately after Invalidate()")
	}
}
