package extedit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type change struct {
	blockID, markup string
}

func newTestBridge(t *testing.T) (*Bridge, chan change) {
	t.Helper()
	ch := make(chan change, 8)
	b, err := New(t.TempDir(), func(id, markup string) { ch <- change{id, markup} }, nil)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, ch
}

func TestBridge_OpenWritesMarkup(t *testing.T) {
	b, _ := newTestBridge(t)

	path, err := b.Open("blk-1", "<b>Hi</b>")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if filepath.Base(path) != "blk-1.html" {
		t.Errorf("unexpected file name %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "<b>Hi</b>\n" {
		t.Errorf("file content = %q", data)
	}
	if got, ok := b.Path("blk-1"); !ok || got != path {
		t.Errorf("Path() = %q, %v", got, ok)
	}
}

func TestBridge_ReportsExternalWrite(t *testing.T) {
	b, ch := newTestBridge(t)

	path, err := b.Open("blk-1", "old")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.WriteFile(path, []byte("<i>new</i>\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-ch:
			if c.blockID != "blk-1" {
				t.Fatalf("change for wrong block %+v", c)
			}
			if c.markup == "<i>new</i>" {
				return
			}
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}

func TestBridge_ReleaseStopsWatching(t *testing.T) {
	b, ch := newTestBridge(t)

	path, err := b.Open("blk-1", "x")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b.Release("blk-1")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
	if err := os.WriteFile(path, []byte("y"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case c := <-ch:
		t.Fatalf("unexpected change after release: %+v", c)
	case <-time.After(2 * settleDelay):
	}
}
