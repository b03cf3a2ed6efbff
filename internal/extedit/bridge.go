// Package extedit lets a text block be edited in an external editor. The
// block's markup is written to a file; every save of that file is read back
// and handed to a callback that applies it to the block.
package extedit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"postcms/internal/logging"
)

// ChangeHandler receives the new markup of an externally edited block.
type ChangeHandler func(blockID, markup string)

// settleDelay is how long a file must stay quiet before it is re-read, so a
// truncate followed by a write is seen as one save.
const settleDelay = 100 * time.Millisecond

type watched struct {
	blockID string
	last    string
	timer   *time.Timer
}

// Bridge watches exported block files for writes.
type Bridge struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange ChangeHandler
	logger   *zap.Logger

	mu    sync.Mutex
	files map[string]*watched // absolute path -> block
	done  chan struct{}
}

// New creates a bridge that exports files into dir.
func New(dir string, onChange ChangeHandler, logger *zap.Logger) (*Bridge, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create edit dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(abs); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	b := &Bridge{
		dir:      abs,
		watcher:  w,
		onChange: onChange,
		logger:   logging.OrNop(logger).Named("extedit"),
		files:    make(map[string]*watched),
		done:     make(chan struct{}),
	}
	go b.watchLoop()
	return b, nil
}

// Open writes markup to the block's file and starts watching it. The
// returned path is what the external editor should open.
func (b *Bridge) Open(blockID, markup string) (string, error) {
	path := b.pathFor(blockID)
	b.mu.Lock()
	b.files[path] = &watched{blockID: blockID, last: markup}
	b.mu.Unlock()

	if err := os.WriteFile(path, []byte(markup+"\n"), 0644); err != nil {
		b.mu.Lock()
		delete(b.files, path)
		b.mu.Unlock()
		return "", fmt.Errorf("export block %s: %w", blockID, err)
	}
	b.logger.Debug("block exported", zap.String("block", blockID), zap.String("path", path))
	return path, nil
}

// Path reports the file of a block that is being edited.
func (b *Bridge) Path(blockID string) (string, bool) {
	path := b.pathFor(blockID)
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.files[path]
	return path, ok
}

// Release stops watching the block and removes its file.
func (b *Bridge) Release(blockID string) {
	path := b.pathFor(blockID)
	b.mu.Lock()
	w, ok := b.files[path]
	delete(b.files, path)
	b.mu.Unlock()
	if ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		os.Remove(path)
	}
}

// Close stops the watcher and removes every exported file.
func (b *Bridge) Close() error {
	err := b.watcher.Close()
	<-b.done
	b.mu.Lock()
	for path, w := range b.files {
		if w.timer != nil {
			w.timer.Stop()
		}
		os.Remove(path)
	}
	b.files = map[string]*watched{}
	b.mu.Unlock()
	return err
}

func (b *Bridge) pathFor(blockID string) string {
	return filepath.Join(b.dir, filepath.Base(blockID)+".html")
}

func (b *Bridge) watchLoop() {
	defer close(b.done)
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			// Editors that save by rename show up as Create.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				b.schedule(event.Name)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (b *Bridge) schedule(name string) {
	path, _ := filepath.Abs(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.files[path]
	if !ok {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(settleDelay, func() { b.reload(path) })
}

func (b *Bridge) reload(path string) {
	b.mu.Lock()
	w, ok := b.files[path]
	b.mu.Unlock()
	if !ok {
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		b.logger.Warn("read edited block", zap.String("path", path), zap.Error(err))
		return
	}
	markup := strings.TrimSpace(string(content))

	b.mu.Lock()
	if w.last == markup {
		b.mu.Unlock()
		return
	}
	w.last = markup
	b.mu.Unlock()

	b.logger.Debug("block edited externally", zap.String("block", w.blockID))
	if b.onChange != nil {
		b.onChange(w.blockID, markup)
	}
}
