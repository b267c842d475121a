package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(op Op, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Op == op && ev.Path == path {
			return true
		}
	}
	return false
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string) *recorder {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})

	rec := &recorder{}
	go func() {
		defer close(done)
		if err := Watch(ctx, root, logger, rec.handle); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatch_NewFile(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(Created, "new.md")
	}, "expected created:new.md")
}

func TestWatch_Write(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "a.md")
	_ = os.WriteFile(p, []byte("one"), 0o644)
	rec := startWatch(t, root)

	_ = os.WriteFile(p, []byte("two"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(Updated, "a.md")
	}, "expected updated:a.md")
}

func TestWatch_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root)

	sub := filepath.Join(root, "posts", "2024")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(200 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(Created, "posts/2024/deep.md") || rec.has(Updated, "posts/2024/deep.md")
	}, "file in new subdir not reported")
}

func TestWatch_Delete(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "del.md")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	rec := startWatch(t, root)

	_ = os.Remove(p)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(Deleted, "del.md")
	}, "expected deleted:del.md")
}

func TestWatch_RenameReportsBothPaths(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, "old.md"), []byte("x"), 0o644)
	rec := startWatch(t, root)

	_ = os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(Deleted, "old.md") && rec.has(Created, "renamed.md") && rec.has(Resync, "")
	}, "rename should report the old path, the new path and a resync")
}

func TestWatch_MissingRoot(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), logger, func(Event) {})
	if err == nil {
		t.Error("expected error for missing root")
	}
}
