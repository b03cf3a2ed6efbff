package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/storage"
)

func newMediaFixture(t *testing.T, maxSize int64) (*MediaService, *storage.FileMediaStore, *storage.PostStore, *events.MockEmitter) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "postcms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := storage.NewFileMediaStore(filepath.Join(t.TempDir(), "media"), "http://cms.test/media", db)
	require.NoError(t, err)
	posts := storage.NewPostStore(db)
	em := &events.MockEmitter{}
	svc := NewMediaService(MediaServiceDeps{Store: files, Posts: posts, MaxSize: maxSize, Grace: time.Hour, Emitter: em})
	return svc, files, posts, em
}

func TestMediaService_UploadReturnsPublicURL(t *testing.T) {
	svc, _, _, _ := newMediaFixture(t, 0)

	url, err := svc.Upload(context.Background(), "abc-1.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "http://cms.test/media/abc-1.png", url)
}

func TestMediaService_UploadEnforcesMaxSize(t *testing.T) {
	svc, _, _, _ := newMediaFixture(t, 4)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "ok.png", "image/png", strings.NewReader("1234"))
	require.NoError(t, err)

	_, err = svc.Upload(ctx, "big.png", "image/png", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok.png", list[0].Name)
}

func TestMediaService_SweepRemovesOnlyOldOrphans(t *testing.T) {
	svc, files, posts, em := newMediaFixture(t, 0)
	ctx := context.Background()

	for _, name := range []string{"used.png", "orphan.png", "clip.mp4"} {
		_, err := svc.Upload(ctx, name, "", strings.NewReader("x"))
		require.NoError(t, err)
	}
	require.NoError(t, posts.SavePost(ctx, &domain.Post{ID: "p", Title: "P", Blocks: []domain.Block{
		{ID: "i", Type: domain.BlockTypeImage, Data: domain.MustEncode(domain.ImageData{URL: files.URL("used.png")})},
		{ID: "v", Type: domain.BlockTypeVideo, Data: domain.MustEncode(domain.VideoData{URL: files.URL("clip.mp4")})},
	}}))

	// Fresh uploads are inside the grace period.
	res, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Empty(t, em.Named(EventMediaSwept))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan.png"}, res.Removed)
	assert.Equal(t, 2, res.Kept)
	assert.Len(t, em.Named(EventMediaSwept), 1)

	list, err := files.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMediaService_EmbedURLsDoNotProtectFiles(t *testing.T) {
	b := domain.Block{ID: "v", Type: domain.BlockTypeVideo, Data: domain.MustEncode(domain.VideoData{
		URL: "https://www.youtube.com/embed/dQw4w9WgXcQ", IsEmbed: true,
	})}
	assert.Equal(t, "", mediaURL(b))
	assert.Equal(t, "", mediaURL(domain.Block{ID: "x", Type: "quote"}))
}

func TestSweeper_ScheduleAndRunOnce(t *testing.T) {
	svc, _, _, _ := newMediaFixture(t, 0)

	_, err := NewSweeper(svc, "not a schedule")
	assert.Error(t, err)

	sw, err := NewSweeper(svc, "@daily")
	require.NoError(t, err)
	require.NoError(t, sw.Start())
	require.NoError(t, sw.Start())
	assert.True(t, sw.RunOnce(context.Background()))

	require.True(t, sw.running.TryLock(sweepJobID))
	assert.False(t, sw.RunOnce(context.Background()))
	sw.running.Unlock(sweepJobID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sw.Stop(ctx)
}
