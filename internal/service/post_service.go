package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postcms/internal/blocks"
	"postcms/internal/cache"
	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/logging"
	"postcms/internal/render"
)

// Events emitted by PostService.
const (
	EventPostSaved    = "post:saved"
	EventPostDeleted  = "post:deleted"
	EventPostRestored = "post:restored"
)

// PostEvent is the payload of the post:* events.
type PostEvent struct {
	PostID     string `json:"postId"`
	RevisionID string `json:"revisionId,omitempty"`
}

// ─────────────────────────────────────────────────────────────
// Post Service: post lifecycle, revisions and rendering
// ─────────────────────────────────────────────────────────────

// PostService saves and loads posts, records a revision per save and serves
// rendered HTML through an optional cache.
type PostService struct {
	posts     domain.PostStore
	revisions domain.RevisionStore
	registry  *blocks.Registry
	renderer  *render.Renderer
	cache     cache.Cache
	emitter   events.EventEmitter
	logger    *zap.Logger
	saves     saveGuard
}

// PostServiceDeps are the collaborators of a PostService. Only Posts is
// required; a nil Revisions disables history and a nil Cache renders on
// every call.
type PostServiceDeps struct {
	Posts     domain.PostStore
	Revisions domain.RevisionStore
	Registry  *blocks.Registry
	Cache     cache.Cache
	Emitter   events.EventEmitter
	Logger    *zap.Logger
}

// NewPostService creates a PostService.
func NewPostService(d PostServiceDeps) *PostService {
	reg := d.Registry
	if reg == nil {
		reg = blocks.Builtin()
	}
	logger := logging.OrNop(d.Logger).Named("posts")
	return &PostService{
		posts:     d.Posts,
		revisions: d.Revisions,
		registry:  reg,
		renderer:  render.New(reg, logger),
		cache:     d.Cache,
		emitter:   events.OrNop(d.Emitter),
		logger:    logger,
	}
}

// Registry is the block registry posts are created and rendered with.
func (s *PostService) Registry() *blocks.Registry { return s.registry }

// ── Posts ──────────────────────────────────────────────────

func (s *PostService) List(ctx context.Context) ([]domain.PostSummary, error) {
	return s.posts.ListPosts(ctx)
}

func (s *PostService) Get(ctx context.Context, id string) (*domain.Post, error) {
	return s.posts.GetPost(ctx, id)
}

// Create stores a new post holding a single empty paragraph.
func (s *PostService) Create(ctx context.Context, title string) (*domain.Post, error) {
	first, err := s.registry.New(domain.BlockTypeParagraph)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	p := &domain.Post{
		ID:     uuid.New().String(),
		Title:  strings.TrimSpace(title),
		Blocks: []domain.Block{first},
	}
	if _, err := s.Save(ctx, p, "created"); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return p, nil
}

// Save persists p and records a revision of its blocks. It fails with
// ErrSaveInProgress while another save of the same post runs.
func (s *PostService) Save(ctx context.Context, p *domain.Post, label string) (*domain.Revision, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("save post: missing id")
	}
	var rev *domain.Revision
	err := s.saves.Do(p.ID, func() error {
		if err := s.posts.SavePost(ctx, p); err != nil {
			return err
		}
		s.syncUpdatedAt(ctx, p)
		r, err := s.recordRevision(ctx, p, label)
		if err != nil {
			return err
		}
		rev = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := PostEvent{PostID: p.ID}
	if rev != nil {
		ev.RevisionID = rev.ID
	}
	s.emitter.Emit(ctx, EventPostSaved, ev)
	s.logger.Debug("post saved", zap.String("post", p.ID), zap.Int("blocks", len(p.Blocks)))
	return rev, nil
}

// syncUpdatedAt replaces p.UpdatedAt with the stored value. Backends keep
// coarser timestamps than time.Now, and open sessions compare against
// what the store reports.
func (s *PostService) syncUpdatedAt(ctx context.Context, p *domain.Post) {
	stored, err := s.posts.GetPost(ctx, p.ID)
	if err != nil {
		s.logger.Debug("read back saved post", zap.String("post", p.ID), zap.Error(err))
		return
	}
	p.UpdatedAt = stored.UpdatedAt
}

// Delete removes a post and its history.
func (s *PostService) Delete(ctx context.Context, id string) error {
	return s.saves.Do(id, func() error {
		if err := s.posts.DeletePost(ctx, id); err != nil {
			return err
		}
		if s.revisions != nil {
			if err := s.revisions.ClearPost(ctx, id); err != nil {
				return fmt.Errorf("delete post %s: %w", id, err)
			}
		}
		s.emitter.Emit(ctx, EventPostDeleted, PostEvent{PostID: id})
		return nil
	})
}

// WaitSaves blocks until in-flight saves finish or ctx is done.
func (s *PostService) WaitSaves(ctx context.Context) {
	s.saves.WaitAll(ctx)
}

// ── Rendering ──────────────────────────────────────────────

// Render returns the read-only HTML of a stored post.
func (s *PostService) Render(ctx context.Context, id string) (string, error) {
	p, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return "", err
	}
	return s.RenderPost(ctx, p), nil
}

// RenderPost renders p, consulting the cache when p has been saved.
func (s *PostService) RenderPost(ctx context.Context, p *domain.Post) string {
	if s.cache == nil || p.UpdatedAt.IsZero() {
		return s.renderer.HTML(p.Blocks)
	}
	key := cache.RenderKey(p.ID, p.UpdatedAt)
	out, err := s.cache.Get(ctx, key)
	if err == nil {
		return out
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("render cache read", zap.String("post", p.ID), zap.Error(err))
	}
	out = s.renderer.HTML(p.Blocks)
	if err := s.cache.Set(ctx, key, out, 0); err != nil {
		s.logger.Warn("render cache write", zap.String("post", p.ID), zap.Error(err))
	}
	return out
}

// ── Revisions ──────────────────────────────────────────────

// History returns the post's revisions, or nil when history is disabled or
// empty.
func (s *PostService) History(ctx context.Context, postID string) (*domain.RevisionHistory, error) {
	if s.revisions == nil {
		return nil, nil
	}
	return s.revisions.LoadHistory(ctx, postID)
}

// Restore replaces the post's blocks with a revision's snapshot and moves
// the history pointer there. The next save branches from it.
func (s *PostService) Restore(ctx context.Context, postID, revisionID string) (*domain.Post, error) {
	if s.revisions == nil {
		return nil, fmt.Errorf("restore %s: %w", revisionID, domain.ErrNotFound)
	}
	var restored *domain.Post
	err := s.saves.Do(postID, func() error {
		rev, err := s.revisions.GetRevision(ctx, revisionID)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if rev.PostID != postID {
			return fmt.Errorf("restore %s: revision of another post: %w", revisionID, domain.ErrNotFound)
		}
		var snapshot []domain.Block
		if err := json.Unmarshal([]byte(rev.SnapshotJSON), &snapshot); err != nil {
			return fmt.Errorf("restore %s: decode snapshot: %w", revisionID, err)
		}

		p, err := s.posts.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		p.Blocks = snapshot
		if err := s.posts.SavePost(ctx, p); err != nil {
			return err
		}
		if err := s.revisions.GoTo(ctx, postID, revisionID); err != nil {
			return err
		}
		restored = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, EventPostRestored, PostEvent{PostID: postID, RevisionID: revisionID})
	return restored, nil
}

func (s *PostService) recordRevision(ctx context.Context, p *domain.Post, label string) (*domain.Revision, error) {
	if s.revisions == nil {
		return nil, nil
	}
	snapshot, err := domain.EncodeBlocks(p.Blocks)
	if err != nil {
		return nil, err
	}
	h, err := s.revisions.LoadHistory(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("record revision: %w", err)
	}
	var parentID string
	if h != nil {
		parentID = h.CurrentID
	}
	rev, err := s.revisions.PushRevision(ctx, p.ID, uuid.New().String(), parentID, label, snapshot)
	if err != nil {
		return nil, fmt.Errorf("record revision: %w", err)
	}
	return rev, nil
}

// ── Import / export ────────────────────────────────────────

// Export writes the post as indented JSON.
func (s *PostService) Export(ctx context.Context, id string, w io.Writer) error {
	p, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("export %s: %w", id, err)
	}
	return nil
}

// Import reads a post written by Export and saves it. A post without an id
// gets a new one; blocks without ids get fresh ones.
func (s *PostService) Import(ctx context.Context, r io.Reader) (*domain.Post, error) {
	var p domain.Post
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	for i := range p.Blocks {
		if p.Blocks[i].ID == "" {
			p.Blocks[i].ID = uuid.New().String()
		}
	}
	if len(p.Blocks) == 0 {
		first, err := s.registry.New(domain.BlockTypeParagraph)
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		p.Blocks = []domain.Block{first}
	}
	if _, err := s.Save(ctx, &p, "imported"); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return &p, nil
}
