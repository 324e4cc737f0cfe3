package cache

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := New[int](200*time.Millisecond, 4)
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be deleted")
	}
}

func TestAgeBoundEviction(t *testing.T) {
	// 4 sectors, 40ms forget timeout => 10ms per rotation.
	c := New[string](40*time.Millisecond, 4)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to be evicted after forget_timeout elapsed")
	}
}

func TestSetRefreshesAge(t *testing.T) {
	c := New[string](80*time.Millisecond, 4)
	defer c.Close()

	c.Set("k", "v1")
	time.Sleep(50 * time.Millisecond)
	c.Set("k", "v2") // refresh before eviction

	time.Sleep(50 * time.Millisecond)
	v, ok := c.Get("k")
	if !ok {
		t.Fatal("expected refreshed entry to still be present")
	}
	if v != "v2" {
		t.Fatalf("expected refreshed value, got %q", v)
	}
}

func TestSectorOf(t *testing.T) {
	c := New[int](400*time.Millisecond, 4)
	defer c.Close()

	c.Set("k", 1)
	sector, ok := c.SectorOf("k")
	if !ok || sector != 0 {
		t.Fatalf("expected freshly-set key in sector 0, got sector=%d ok=%v", sector, ok)
	}

	if _, ok := c.SectorOf("missing"); ok {
		t.Fatal("expected SectorOf to report absent for missing key")
	}
}

func TestLen(t *testing.T) {
	c := New[int](200*time.Millisecond, 4)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestRangeVisitsAllEntriesAndAllowsDelete(t *testing.T) {
	c := New[int](200*time.Millisecond, 4)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	seen := map[string]int{}
	c.Range(func(key string, value int) {
		seen[key] = value
		c.Delete(key) // must not deadlock from within the callback
	})

	if len(seen) != 3 || seen["a"] != 1 || seen["b"] != 2 || seen["c"] != 3 {
		t.Fatalf("Range visited = %+v", seen)
	}
	if c.Len() != 0 {
		t.Fatalf("expected all entries deleted from within Range, Len() = %d", c.Len())
	}
}

func TestDefaultSectorCount(t *testing.T) {
	c := New[int](100*time.Millisecond, 0)
	defer c.Close()
	if len(c.sectors) != defaultSectors {
		t.Fatalf("expected default %d sectors, got %d", defaultSectors, len(c.sectors))
	}
}
