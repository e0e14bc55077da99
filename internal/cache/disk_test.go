package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := Key("https://example.com/page")
	if err := c.Set(key, []byte("page body"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found := c.Get(key)
	if !found {
		t.Fatal("expected cache hit")
	}
	if string(got) != "page body" {
		t.Errorf("got %q", got)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := Key("https://example.com/stale")
	if err := c.Set(key, []byte("old"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, found := c.Get(key); found {
		t.Error("expected expired entry to miss")
	}
}

func TestDiskCache_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	for i := 0; i < 5; i++ {
		if err := c.Set(Key("https://example.com/"+string(rune('a'+i))), []byte("x"), 0); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".cache-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestDiskCache_CorruptEntryDropped(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	key := Key("https://example.com/corrupt")
	path := filepath.Join(dir, key+".cache")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, found := c.Get(key); found {
		t.Error("corrupt entry must not hit")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt entry should have been removed")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Hour, dir, time.Hour)

	key := Key("https://example.com/layered")
	if err := c.disk.Set(key, []byte("disk only"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, found := c.memory.Get(key); found {
		t.Fatal("precondition: memory should miss")
	}
	if _, found := c.Get(key); !found {
		t.Fatal("layered get should hit via disk")
	}
	if _, found := c.memory.Get(key); !found {
		t.Error("disk hit should have been promoted to memory")
	}
}
