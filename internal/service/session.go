package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"postcms/internal/domain"
	"postcms/internal/editor"
	"postcms/internal/embed"
	"postcms/internal/events"
	"postcms/internal/extedit"
	"postcms/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// Editing sessions: open posts with a live editor each
// ─────────────────────────────────────────────────────────────

// Session is one open post: its stored metadata plus the editor holding
// the unsaved block list.
type Session struct {
	mu   sync.Mutex
	meta domain.Post
	ed   *editor.Editor
	// baseline is the encoded block list as last loaded or saved.
	baseline string
}

func (s *Session) Editor() *editor.Editor { return s.ed }

// Dirty reports whether the editor holds blocks that differ from the
// stored version.
func (s *Session) Dirty() bool {
	cur, err := domain.EncodeBlocks(s.ed.Blocks())
	if err != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cur != s.baseline
}

// Post returns the post with the editor's current blocks.
func (s *Session) Post() domain.Post {
	s.mu.Lock()
	p := s.meta
	s.mu.Unlock()
	p.Blocks = s.ed.Blocks()
	return p
}

// SessionDeps configures Sessions. ExternalDir enables EditExternally.
type SessionDeps struct {
	Posts       *PostService
	Uploader    editor.Uploader
	Classifier  *embed.Classifier
	Emitter     events.EventEmitter
	Logger      *zap.Logger
	Viewport    editor.Viewport
	ExternalDir string
}

// Sessions keeps at most one editor per post.
type Sessions struct {
	deps   SessionDeps
	logger *zap.Logger

	mu     sync.Mutex
	open   map[string]*Session
	bridge *extedit.Bridge
}

func NewSessions(d SessionDeps) *Sessions {
	d.Emitter = events.OrNop(d.Emitter)
	return &Sessions{
		deps:   d,
		logger: logging.OrNop(d.Logger).Named("sessions"),
		open:   make(map[string]*Session),
	}
}

// Open returns the post's session, loading it from the store when it is
// not open yet.
func (m *Sessions) Open(ctx context.Context, postID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.open[postID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	p, err := m.deps.Posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("open post: %w", err)
	}
	s, err := m.newSession(p)
	if err != nil {
		return nil, fmt.Errorf("open post %s: %w", postID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.open[postID]; ok {
		return existing, nil
	}
	m.open[postID] = s
	m.logger.Debug("session opened", zap.String("post", postID), zap.Int("blocks", len(p.Blocks)))
	return s, nil
}

func (m *Sessions) newSession(p *domain.Post) (*Session, error) {
	ed, err := editor.New(p.Blocks, editor.Options{
		Registry:   m.deps.Posts.Registry(),
		Uploader:   m.deps.Uploader,
		Classifier: m.deps.Classifier,
		Emitter:    m.deps.Emitter,
		Logger:     m.deps.Logger,
		Viewport:   m.deps.Viewport,
	})
	if err != nil {
		return nil, err
	}
	baseline, err := domain.EncodeBlocks(ed.Blocks())
	if err != nil {
		return nil, err
	}
	meta := *p
	meta.Blocks = nil
	return &Session{meta: meta, ed: ed, baseline: baseline}, nil
}

// Get returns an open session.
func (m *Sessions) Get(postID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.open[postID]
	return s, ok
}

// OpenIDs lists the posts with an open session.
func (m *Sessions) OpenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	return ids
}

// Save persists the session's current blocks.
func (m *Sessions) Save(ctx context.Context, postID, label string) (*domain.Post, *domain.Revision, error) {
	s, ok := m.Get(postID)
	if !ok {
		return nil, nil, fmt.Errorf("save post %s: no open session: %w", postID, domain.ErrNotFound)
	}
	p := s.Post()
	rev, err := m.deps.Posts.Save(ctx, &p, label)
	if err != nil {
		return nil, nil, err
	}
	baseline, _ := domain.EncodeBlocks(p.Blocks)
	s.mu.Lock()
	s.meta.Slug = p.Slug
	s.meta.CreatedAt = p.CreatedAt
	s.meta.UpdatedAt = p.UpdatedAt
	s.baseline = baseline
	s.mu.Unlock()
	return &p, rev, nil
}

// SetTitle renames the open post; the change is stored on the next save.
func (m *Sessions) SetTitle(postID, title string) error {
	s, ok := m.Get(postID)
	if !ok {
		return fmt.Errorf("rename post %s: %w", postID, domain.ErrNotFound)
	}
	s.mu.Lock()
	s.meta.Title = title
	s.meta.Slug = ""
	s.mu.Unlock()
	return nil
}

// Reload replaces an open session with the stored post, dropping unsaved
// edits. It is a no-op for posts without a session.
func (m *Sessions) Reload(ctx context.Context, postID string) error {
	if _, ok := m.Get(postID); !ok {
		return nil
	}
	m.Discard(postID)
	_, err := m.Open(ctx, postID)
	return err
}

// Discard closes a session without saving.
func (m *Sessions) Discard(postID string) {
	m.mu.Lock()
	s, ok := m.open[postID]
	delete(m.open, postID)
	bridge := m.bridge
	m.mu.Unlock()
	if !ok {
		return
	}
	if bridge != nil {
		for _, id := range s.ed.Document().IDs() {
			bridge.Release(id)
		}
	}
}

// EditExternally exports a text block's markup to a file. Saves of that
// file are applied to the block as input.
func (m *Sessions) EditExternally(ctx context.Context, postID, blockID string) (string, error) {
	s, ok := m.Get(postID)
	if !ok {
		return "", fmt.Errorf("edit post %s: %w", postID, domain.ErrNotFound)
	}
	surface, err := s.ed.Text(blockID)
	if err != nil {
		return "", err
	}
	_, markup, err := surface.Content()
	if err != nil {
		return "", err
	}
	bridge, err := m.externalBridge()
	if err != nil {
		return "", err
	}
	return bridge.Open(blockID, markup)
}

func (m *Sessions) externalBridge() (*extedit.Bridge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bridge != nil {
		return m.bridge, nil
	}
	if m.deps.ExternalDir == "" {
		return nil, fmt.Errorf("external editing is not configured")
	}
	b, err := extedit.New(m.deps.ExternalDir, m.applyExternal, m.deps.Logger)
	if err != nil {
		return nil, err
	}
	m.bridge = b
	return b, nil
}

func (m *Sessions) applyExternal(blockID, markup string) {
	m.mu.Lock()
	var target *Session
	for _, s := range m.open {
		if s.ed.Document().Has(blockID) {
			target = s
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		m.logger.Debug("external edit for closed block", zap.String("block", blockID))
		return
	}
	if err := target.ed.Input(context.Background(), blockID, markup, editor.Point{}); err != nil {
		m.logger.Warn("apply external edit", zap.String("block", blockID), zap.Error(err))
	}
}

// Close waits for pending uploads of every session and stops external
// editing. Sessions stay open.
func (m *Sessions) Close(ctx context.Context) error {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.open))
	for _, s := range m.open {
		list = append(list, s)
	}
	bridge := m.bridge
	m.bridge = nil
	m.mu.Unlock()

	for _, s := range list {
		if err := s.ed.WaitUploads(ctx); err != nil {
			return err
		}
	}
	if bridge != nil {
		return bridge.Close()
	}
	return nil
}
