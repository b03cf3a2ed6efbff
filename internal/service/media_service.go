package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/logging"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// EventMediaSwept is emitted after a sweep removed at least one file.
const EventMediaSwept = "media:swept"

// SweepResult is the payload of media:swept.
type SweepResult struct {
	Removed []string `json:"removed"`
	Kept    int      `json:"kept"`
}

// ─────────────────────────────────────────────────────────────
// Media Service: uploads and orphan cleanup
// ─────────────────────────────────────────────────────────────

// MediaService stores uploaded files and removes the ones no post refers to.
// It satisfies the editor's Uploader.
type MediaService struct {
	store   domain.MediaStore
	posts   domain.PostStore
	maxSize int64
	grace   time.Duration
	emitter events.EventEmitter
	logger  *zap.Logger
	now     func() time.Time
}

// MediaServiceDeps are the collaborators of a MediaService.
type MediaServiceDeps struct {
	Store   domain.MediaStore
	Posts   domain.PostStore
	MaxSize int64
	// Grace protects fresh uploads whose post has not been saved yet.
	Grace   time.Duration
	Emitter events.EventEmitter
	Logger  *zap.Logger
}

func NewMediaService(d MediaServiceDeps) *MediaService {
	grace := d.Grace
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &MediaService{
		store:   d.Store,
		posts:   d.Posts,
		maxSize: d.MaxSize,
		grace:   grace,
		emitter: events.OrNop(d.Emitter),
		logger:  logging.OrNop(d.Logger).Named("media"),
		now:     time.Now,
	}
}

// Upload stores r under name and returns its public URL.
func (s *MediaService) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if s.maxSize > 0 {
		r = &limitReader{r: r, left: s.maxSize}
	}
	obj, err := s.store.Put(ctx, name, contentType, r)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	s.logger.Info("media stored",
		zap.String("name", obj.Name),
		zap.String("type", obj.ContentType),
		zap.Int64("size", obj.Size),
	)
	return obj.URL, nil
}

func (s *MediaService) List(ctx context.Context) ([]domain.MediaObject, error) {
	return s.store.List(ctx)
}

// Sweep deletes media older than the grace period that no stored post
// references from an image or video block.
func (s *MediaService) Sweep(ctx context.Context) (*SweepResult, error) {
	used, err := s.referencedURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	objs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	res := &SweepResult{}
	cutoff := s.now().Add(-s.grace)
	for _, o := range objs {
		if _, ok := used[o.URL]; ok || o.CreatedAt.After(cutoff) {
			res.Kept++
			continue
		}
		if err := s.store.Delete(ctx, o.Name); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("sweep delete", zap.String("name", o.Name), zap.Error(err))
			res.Kept++
			continue
		}
		res.Removed = append(res.Removed, o.Name)
	}
	if len(res.Removed) > 0 {
		s.logger.Info("media swept", zap.Strings("removed", res.Removed), zap.Int("kept", res.Kept))
		s.emitter.Emit(ctx, EventMediaSwept, *res)
	}
	return res, nil
}

func (s *MediaService) referencedURLs(ctx context.Context) (map[string]struct{}, error) {
	summaries, err := s.posts.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	used := make(map[string]struct{})
	for _, sum := range summaries {
		p, err := s.posts.GetPost(ctx, sum.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, b := range p.Blocks {
			if u := mediaURL(b); u != "" {
				used[u] = struct{}{}
			}
		}
	}
	return used, nil
}

func mediaURL(b domain.Block) string {
	switch b.Type {
	case domain.BlockTypeImage:
		d, err := domain.DecodeData[domain.ImageData](b)
		if err == nil {
			return d.URL
		}
	case domain.BlockTypeVideo:
		d, err := domain.DecodeData[domain.VideoData](b)
		if err == nil && !d.IsEmbed {
			return d.URL
		}
	}
	return ""
}

// limitReader fails with ErrFileTooLarge once more than left bytes are read.
type limitReader struct {
	r    io.Reader
	left int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.left < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
