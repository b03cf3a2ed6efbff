package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/service"
)

const (
	EventPostsChanged = "posts:changed"
	EventPostChanged  = "post:changed-externally"
	EventPostConflict = "post:conflict"
	EventPostRemoved  = "post:removed-externally"
)

const defaultWatchInterval = 2 * time.Second

// postWatcher polls the post store for changes made by another process
// (a second MCP server, the CLI import) and keeps open sessions in step.
// Sessions without unsaved edits are reloaded; dirty ones are left alone
// and reported as a conflict.
type postWatcher struct {
	posts    *service.PostService
	sessions *service.Sessions
	emitter  events.EventEmitter
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	lastList string // count + max updated_at
	stopCh   chan struct{}
	done     chan struct{}
}

func newPostWatcher(posts *service.PostService, sessions *service.Sessions, emitter events.EventEmitter, logger *zap.Logger) *postWatcher {
	return &postWatcher{
		posts:    posts,
		sessions: sessions,
		emitter:  emitter,
		logger:   logger.Named("watcher"),
		interval: defaultWatchInterval,
	}
}

// Start begins the polling loop. Calling it again is a no-op.
func (w *postWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.pollLoop(ctx, w.stopCh, w.done)
}

// Stop terminates the polling loop and waits for it to exit.
func (w *postWatcher) Stop() {
	w.mu.Lock()
	stopCh, done := w.stopCh, w.done
	w.stopCh, w.done = nil, nil
	w.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-done
	}
}

func (w *postWatcher) pollLoop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *postWatcher) check(ctx context.Context) {
	list, err := w.posts.List(ctx)
	if err != nil {
		w.logger.Debug("list posts", zap.Error(err))
		return
	}

	// ── Post list fingerprint ───────────────────────────
	var newest time.Time
	stored := make(map[string]domain.PostSummary, len(list))
	for _, p := range list {
		stored[p.ID] = p
		if p.UpdatedAt.After(newest) {
			newest = p.UpdatedAt
		}
	}
	fingerprint := fmt.Sprintf("%d:%d", len(list), newest.UnixNano())

	w.mu.Lock()
	listChanged := w.lastList != "" && w.lastList != fingerprint
	w.lastList = fingerprint
	w.mu.Unlock()

	if listChanged {
		w.emitter.Emit(ctx, EventPostsChanged, map[string]int{"count": len(list)})
	}

	// ── Open sessions ───────────────────────────────────
	for _, id := range w.sessions.OpenIDs() {
		sess, ok := w.sessions.Get(id)
		if !ok {
			continue
		}
		summary, exists := stored[id]
		if !exists {
			w.sessions.Discard(id)
			w.logger.Info("post removed by another process", zap.String("post", id))
			w.emitter.Emit(ctx, EventPostRemoved, map[string]string{"postId": id})
			continue
		}
		if summary.UpdatedAt.Equal(sess.Post().UpdatedAt) {
			continue
		}
		if sess.Dirty() {
			w.logger.Warn("post changed while it has unsaved edits", zap.String("post", id))
			w.emitter.Emit(ctx, EventPostConflict, map[string]string{"postId": id})
			continue
		}
		if err := w.sessions.Reload(ctx, id); err != nil {
			w.logger.Warn("reload session", zap.String("post", id), zap.Error(err))
			continue
		}
		w.emitter.Emit(ctx, EventPostChanged, map[string]string{"postId": id})
	}
}
