package service

import (
	"context"
	"errors"
	"sync"
)

// ErrSaveInProgress is returned when a save for the same post is in flight.
var ErrSaveInProgress = errors.New("save already in progress")

// ExportedSaveGuard is an exported alias so _test packages can test the guard.
type ExportedSaveGuard = saveGuard

// ─────────────────────────────────────────────────────────────
// saveGuard: one writer per post
// ─────────────────────────────────────────────────────────────

// saveGuard rejects overlapping writes to the same post and lets shutdown
// wait for writes in flight.
type saveGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks postID as being written. It returns false when a write for
// postID already holds the guard.
func (g *saveGuard) TryLock(postID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[postID]; ok {
		return false
	}
	g.running[postID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases postID. Must follow a successful TryLock.
func (g *saveGuard) Unlock(postID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, postID)
	g.wg.Done()
}

// Do runs fn while holding postID, or returns ErrSaveInProgress.
func (g *saveGuard) Do(postID string, fn func() error) error {
	if !g.TryLock(postID) {
		return ErrSaveInProgress
	}
	defer g.Unlock(postID)
	return fn()
}

// WaitAll blocks until every held post is released or ctx is done.
func (g *saveGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
