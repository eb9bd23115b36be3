package service

import (
	"testing"
	"time"

	domaintool "github.com/zeroclaw/gateway/internal/domain/tool"
)

func TestToolCache_HitOnIdenticalReadOnlyCall(t *testing.T) {
	c := NewToolResultCache(time.Minute, 10)
	args := map[string]interface{}{"pin": 25, "device": "pico0"}

	c.Put(domaintool.KindRead, "gpio_read", args, "GPIO 25 is HIGH (1) on pico0", true)

	out, hit := c.Get(domaintool.KindRead, "gpio_read", args)
	if !hit {
		t.Fatal("expected cache hit")
	}
	if out != "GPIO 25 is HIGH (1) on pico0" {
		t.Fatalf("output = %q", out)
	}
}

func TestToolCache_DifferentArgsMiss(t *testing.T) {
	c := NewToolResultCache(time.Minute, 10)

	c.Put(domaintool.KindRead, "gpio_read", map[string]interface{}{"pin": 25}, "high", true)
	if _, hit := c.Get(domaintool.KindRead, "gpio_read", map[string]interface{}{"pin": 26}); hit {
		t.Fatal("different args must miss")
	}
	if _, hit := c.Get(domaintool.KindRead, "read_file", map[string]interface{}{"pin": 25}); hit {
		t.Fatal("different tool must miss")
	}
}

func TestToolCache_SideEffectKindsNeverCached(t *testing.T) {
	c := NewToolResultCache(time.Minute, 10)
	args := map[string]interface{}{"pin": 25, "value": 1}

	c.Put(domaintool.KindExecute, "gpio_write", args, "GPIO 25 set HIGH on pico0", true)
	if _, hit := c.Get(domaintool.KindExecute, "gpio_write", args); hit {
		t.Fatal("execute-kind results must never come from cache")
	}
	if c.Size() != 0 {
		t.Fatalf("cache should stay empty, size = %d", c.Size())
	}
}

func TestToolCache_FailuresNeverCached(t *testing.T) {
	c := NewToolResultCache(time.Minute, 10)
	args := map[string]interface{}{"pin": 25}

	c.Put(domaintool.KindRead, "gpio_read", args, "transport error: read timeout", false)
	if _, hit := c.Get(domaintool.KindRead, "gpio_read", args); hit {
		t.Fatal("a failed read must be retried, not replayed from cache")
	}
}

func TestToolCache_TTLExpiry(t *testing.T) {
	c := NewToolResultCache(10*time.Millisecond, 10)
	args := map[string]interface{}{"path": "a.txt"}

	c.Put(domaintool.KindRead, "read_file", args, "contents", true)
	time.Sleep(25 * time.Millisecond)

	if _, hit := c.Get(domaintool.KindRead, "read_file", args); hit {
		t.Fatal("expired entry must miss")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be evicted, size = %d", c.Size())
	}
}

func TestToolCache_CapacityEviction(t *testing.T) {
	c := NewToolResultCache(time.Minute, 3)

	for i := 0; i < 5; i++ {
		c.Put(domaintool.KindRead, "read_file", map[string]interface{}{"n": i}, "x", true)
	}
	if c.Size() > 3 {
		t.Fatalf("size = %d, want <= 3", c.Size())
	}
}

func TestToolCache_Clear(t *testing.T) {
	c := NewToolResultCache(time.Minute, 10)
	c.Put(domaintool.KindRead, "read_file", map[string]interface{}{"p": "a"}, "x", true)
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("size after clear = %d", c.Size())
	}
}

func TestMakeCacheKey_Deterministic(t *testing.T) {
	a := makeCacheKey("gpio_read", map[string]interface{}{"pin": 1, "device": "pico0"})
	b := makeCacheKey("gpio_read", map[string]interface{}{"device": "pico0", "pin": 1})
	if a != b {
		t.Fatal("key must be independent of map insertion order")
	}
	if a == makeCacheKey("gpio_write", map[string]interface{}{"pin": 1, "device": "pico0"}) {
		t.Fatal("tool name must participate in the key")
	}
}
