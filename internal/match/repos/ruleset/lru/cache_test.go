package lru

import (
	"testing"

	"github.com/haukened/rr-bytes/internal/match/domain"
	"github.com/haukened/rr-bytes/internal/match/repos/ruleset"
)

func TestDecisionCache_HitMissAndPut(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	key := string([]byte{0xca, 0xfe})
	d := domain.Decision{Accepted: true, Matched: true, RuleIndex: 3}

	if _, ok := c.Get(key); ok {
		t.Fatalf("expected miss before put")
	}
	c.Put(key, d)

	got, ok := c.Get(key)
	if !ok || !got.Accepted || got.RuleIndex != 3 {
		t.Fatalf("unexpected get: ok=%v got=%+v", ok, got)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Capacity != 2 || st.Size != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestDecisionCache_EvictionAndLen(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("\x01", domain.Decision{Accepted: true})
	c.Put("\x02", domain.Decision{Accepted: true})
	c.Put("\x03", domain.Decision{Accepted: true})
	if got := c.Len(); got != 2 {
		t.Fatalf("len=%d want=2 after eviction", got)
	}
	if _, ok := c.Get("\x01"); ok {
		t.Fatalf("least recently used entry should have been evicted")
	}
	if ev := c.Stats().Evictions; ev != 1 {
		t.Fatalf("evictions=%d want=1", ev)
	}
}

func TestDecisionCache_PurgeCountsEvictions(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.Decision{})
	c.Put("b", domain.Decision{})
	c.Put("c", domain.Decision{})

	c.Purge()
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 after purge", got)
	}
	if ev := c.Stats().Evictions; ev != 3 {
		t.Fatalf("evictions=%d want=3 after purge", ev)
	}
}

func TestDecisionCache_Disabled(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("x", domain.Decision{Accepted: true})
	if _, ok := c.Get("x"); ok {
		t.Fatalf("expected miss in disabled cache")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 for disabled", got)
	}
	c.Purge()
	if st := c.Stats(); st != (ruleset.CacheStats{}) {
		t.Fatalf("disabled cache should report zero stats, got %+v", st)
	}
}
