package editor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postcms/internal/blocks"
	"postcms/internal/domain"
	"postcms/internal/embed"
	"postcms/internal/events"
	"postcms/internal/richtext"
)

// Uploader stores a file under name and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// File is a file picked by the user.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// detectedType is the declared content type, or one guessed from the file
// extension when none was declared.
func (f File) detectedType() string {
	ct := strings.TrimSpace(f.ContentType)
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name)))
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

// UploadName builds a collision-resistant storage name: a random token, the
// current unix time in milliseconds and the original extension.
func UploadName(original string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%d%s", token, now.UnixMilli(), strings.ToLower(filepath.Ext(original)))
}

// ─────────────────────────────────────────────────────────────
// Upload tasks
// ─────────────────────────────────────────────────────────────

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadSucceeded UploadStatus = "succeeded"
	UploadFailed    UploadStatus = "failed"
)

// UploadResult is the settled state of an upload.
type UploadResult struct {
	BlockID string       `json:"blockId"`
	Name    string       `json:"name"`
	Status  UploadStatus `json:"status"`
	URL     string       `json:"url,omitempty"`
	Error   string       `json:"error,omitempty"`
	// Discarded is set when the upload finished after its block was removed.
	Discarded bool `json:"discarded,omitempty"`
}

// UploadTask tracks one in-flight upload.
type UploadTask struct {
	mu     sync.Mutex
	result UploadResult
	done   chan struct{}
}

func newUploadTask(blockID, name string) *UploadTask {
	return &UploadTask{
		result: UploadResult{BlockID: blockID, Name: name, Status: UploadPending},
		done:   make(chan struct{}),
	}
}

// Done is closed when the upload settles.
func (t *UploadTask) Done() <-chan struct{} { return t.done }

// Result returns the current state, pending until Done is closed.
func (t *UploadTask) Result() UploadResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Wait blocks until the upload settles or ctx ends.
func (t *UploadTask) Wait(ctx context.Context) (UploadResult, error) {
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return t.Result(), ctx.Err()
	}
}

func (t *UploadTask) settle(r UploadResult) {
	t.mu.Lock()
	t.result = r
	t.mu.Unlock()
	close(t.done)
}

// ─────────────────────────────────────────────────────────────
// Media surface
// ─────────────────────────────────────────────────────────────

// MediaSurface is the editing surface of an image or video block.
type MediaSurface struct {
	doc        *Document
	id         string
	kind       blocks.Kind
	uploader   Uploader
	classifier *embed.Classifier
	emitter    events.EventEmitter
	logger     *zap.Logger
	track      func(*UploadTask)
	now        func() time.Time
}

// Upload checks the file type, then uploads in the background. A rejected
// file returns ErrUnsupportedFile and leaves the block untouched. Cancelling
// ctx after Upload returns does not abort the upload.
func (s *MediaSurface) Upload(ctx context.Context, f File) (*UploadTask, error) {
	if !s.doc.Has(s.id) {
		return nil, fmt.Errorf("upload %s: %w", s.id, ErrBlockNotFound)
	}
	ct := f.detectedType()
	if !strings.HasPrefix(ct, s.kind.Accept) {
		msg := fmt.Sprintf("%s expects a %s* file, got %q", s.kind.Label, s.kind.Accept, ct)
		s.emitter.Emit(ctx, EventAlert, Alert{BlockID: s.id, Message: msg})
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, msg)
	}
	if s.uploader == nil {
		return nil, fmt.Errorf("upload %s: no media uploader configured", s.id)
	}
	if f.Body == nil {
		return nil, fmt.Errorf("upload %s: %s has no content", s.id, f.Name)
	}

	name := UploadName(f.Name, s.now())
	task := newUploadTask(s.id, name)
	if s.track != nil {
		s.track(task)
	}
	s.emitter.Emit(ctx, EventUploadPending, UploadEvent{BlockID: s.id, Name: name})

	bg := context.WithoutCancel(ctx)
	go func() {
		url, err := s.uploader.Upload(bg, name, ct, f.Body)
		task.settle(s.complete(bg, name, url, err))
	}()
	return task, nil
}

// complete applies a finished upload. A block that is gone by now is not
// resurrected; the result is discarded.
func (s *MediaSurface) complete(ctx context.Context, name, url string, uploadErr error) UploadResult {
	res := UploadResult{BlockID: s.id, Name: name}
	if uploadErr != nil {
		res.Status, res.Error = UploadFailed, uploadErr.Error()
		s.logger.Warn("upload failed", zap.String("block", s.id), zap.String("name", name), zap.Error(uploadErr))
		s.emitter.Emit(ctx, EventUploadFailed, UploadEvent{BlockID: s.id, Name: name, Error: res.Error})
		return res
	}
	res.Status, res.URL = UploadSucceeded, url
	err := s.setMedia(url, false)
	if err != nil {
		res.Discarded = true
		s.logger.Debug("discarding stale upload", zap.String("block", s.id), zap.String("name", name), zap.Error(err))
		return res
	}
	s.emitter.Emit(ctx, EventUploadSucceeded, UploadEvent{BlockID: s.id, Name: name, URL: url})
	return res
}

// SetURL sets the media URL from a pasted link. Video URLs are normalized
// to the platform embed form when recognized.
func (s *MediaSurface) SetURL(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !richtext.SafeURL(raw) {
		return "", fmt.Errorf("set media url: %w", ErrUnsafeURL)
	}
	url, isEmbed := raw, false
	if s.kind.Type == domain.BlockTypeVideo && raw != "" {
		res := s.classifier.Classify(raw)
		url, isEmbed = res.URL, res.IsEmbed
	}
	if err := s.setMedia(url, isEmbed); err != nil {
		return "", err
	}
	return url, nil
}

// SetCaption binds the caption as typed. No validation.
func (s *MediaSurface) SetCaption(_ context.Context, caption string) error {
	return s.doc.Edit(s.id, func(b *domain.Block) error {
		switch b.Type {
		case domain.BlockTypeImage:
			d, err := domain.DecodeData[domain.ImageData](*b)
			if err != nil {
				return err
			}
			d.Caption = caption
			return mergeData(b, d)
		case domain.BlockTypeVideo:
			d, err := domain.DecodeData[domain.VideoData](*b)
			if err != nil {
				return err
			}
			d.Caption = caption
			return mergeData(b, d)
		}
		return ErrWrongSurface
	})
}

// Delete removes the block from the document, not just its media.
func (s *MediaSurface) Delete(ctx context.Context) bool {
	ok := s.doc.RemoveBlock(s.id)
	if ok {
		s.emitter.Emit(ctx, EventDeleteRequested, DeleteRequested{BlockID: s.id})
	}
	return ok
}

func (s *MediaSurface) setMedia(url string, isEmbed bool) error {
	return s.doc.Edit(s.id, func(b *domain.Block) error {
		switch b.Type {
		case domain.BlockTypeImage:
			d, err := domain.DecodeData[domain.ImageData](*b)
			if err != nil {
				return err
			}
			d.URL = url
			return mergeData(b, d)
		case domain.BlockTypeVideo:
			d, err := domain.DecodeData[domain.VideoData](*b)
			if err != nil {
				return err
			}
			d.URL, d.IsEmbed = url, isEmbed
			return mergeData(b, d)
		}
		return ErrWrongSurface
	})
}

func mergeData(b *domain.Block, v any) error {
	data, err := domain.MergePayload(b.Data, v)
	if err != nil {
		return err
	}
	b.Data = data
	return nil
}
