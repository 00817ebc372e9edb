package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchReportsRenameOverTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "taskDatabase.json")
	if err := os.WriteFile(target, []byte("[]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, target, Options{Debounce: 20 * time.Millisecond}, func() { hits.Add(1) })
		close(done)
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	tmp := filepath.Join(dir, "taskDatabase.json.tmp-1")
	if err := os.WriteFile(tmp, []byte("[{}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() == 0 {
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	go func() { _ = Watch(ctx, target, Options{Debounce: 10 * time.Millisecond}, func() { hits.Add(1) }) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := hits.Load(); n != 0 {
		t.Fatalf("hits = %d, want 0", n)
	}
}
