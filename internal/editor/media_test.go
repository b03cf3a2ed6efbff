package editor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcms/internal/domain"
	"postcms/internal/editor"
	"postcms/internal/embed"
)

type fakeUploader struct {
	mu      sync.Mutex
	calls   int
	names   []string
	bodies  []string
	release chan struct{}
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	body, _ := io.ReadAll(r)
	f.mu.Lock()
	f.calls++
	f.names = append(f.names, name)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/media/" + name, nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

func wait(t *testing.T, task *editor.UploadTask) editor.UploadResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestUpload_RejectsWrongFileTypeBeforeUploading(t *testing.T) {
	up := &fakeUploader{}
	v := block("V", domain.BlockTypeVideo)
	v.Data = json.RawMessage(`{"url":"https://cdn.example/old.mp4","caption":"","isEmbed":false}`)
	ed, em := newEditor(t, []domain.Block{v}, editor.Options{Uploader: up})
	s, err := ed.Media("V")
	require.NoError(t, err)

	task, err := s.Upload(context.Background(), editor.File{Name: "notes.pdf", ContentType: "application/pdf", Body: strings.NewReader("%PDF")})
	assert.ErrorIs(t, err, editor.ErrUnsupportedFile)
	assert.Nil(t, task)
	assert.Zero(t, up.callCount())

	b, _ := ed.Document().Block("V")
	assert.Equal(t, "https://cdn.example/old.mp4", decode[domain.VideoData](t, b.Data).URL)
	assert.Len(t, em.Named(editor.EventAlert), 1)
	assert.Empty(t, em.Named(editor.EventUploadPending))
}

func TestUpload_SucceedsAndSetsURL(t *testing.T) {
	up := &fakeUploader{}
	ed, em := newEditor(t, []domain.Block{block("I", domain.BlockTypeImage)}, editor.Options{Uploader: up, Now: fixedNow})
	s, _ := ed.Media("I")

	task, err := s.Upload(context.Background(), editor.File{Name: "Team Photo.PNG", Body: strings.NewReader("png-bytes")})
	require.NoError(t, err)
	res := wait(t, task)

	assert.Equal(t, editor.UploadSucceeded, res.Status)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}-1700000000000\.png$`), res.Name)
	assert.Equal(t, []string{"png-bytes"}, up.bodies)

	b, _ := ed.Document().Block("I")
	assert.Equal(t, "https://cdn.example/media/"+res.Name, decode[domain.ImageData](t, b.Data).URL)
	assert.Len(t, em.Named(editor.EventUploadPending), 1)
	assert.Len(t, em.Named(editor.EventUploadSucceeded), 1)

	tracked, ok := ed.Upload("I")
	require.True(t, ok)
	assert.Same(t, task, tracked)
}

func TestUpload_VideoFileClearsEmbedFlag(t *testing.T) {
	v := block("V", domain.BlockTypeVideo)
	v.Data = json.RawMessage(`{"url":"https://www.youtube.com/embed/abc12345678","caption":"c","isEmbed":true}`)
	ed, _ := newEditor(t, []domain.Block{v}, editor.Options{Uploader: &fakeUploader{}})
	s, _ := ed.Media("V")

	task, err := s.Upload(context.Background(), editor.File{Name: "clip.mp4", ContentType: "video/mp4", Body: strings.NewReader("")})
	require.NoError(t, err)
	wait(t, task)

	b, _ := ed.Document().Block("V")
	d := decode[domain.VideoData](t, b.Data)
	assert.False(t, d.IsEmbed)
	assert.Equal(t, "c", d.Caption)
}

func TestUpload_FailureLeavesURLUnset(t *testing.T) {
	up := &fakeUploader{err: errors.New("bucket quota exceeded")}
	ed, em := newEditor(t, []domain.Block{block("I", domain.BlockTypeImage)}, editor.Options{Uploader: up})
	s, _ := ed.Media("I")

	task, err := s.Upload(context.Background(), editor.File{Name: "a.jpg", ContentType: "image/jpeg", Body: strings.NewReader("")})
	require.NoError(t, err)
	res := wait(t, task)

	assert.Equal(t, editor.UploadFailed, res.Status)
	assert.Equal(t, "bucket quota exceeded", res.Error)
	b, _ := ed.Document().Block("I")
	assert.Empty(t, decode[domain.ImageData](t, b.Data).URL)

	failed := em.Named(editor.EventUploadFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "bucket quota exceeded", failed[0].Data.(editor.UploadEvent).Error)
}

func TestUpload_StaleCompletionIsDiscarded(t *testing.T) {
	up := &fakeUploader{release: make(chan struct{})}
	ed, em := newEditor(t, []domain.Block{para("P", "x"), block("I", domain.BlockTypeImage)}, editor.Options{Uploader: up})
	s, _ := ed.Media("I")

	task, err := s.Upload(context.Background(), editor.File{Name: "a.gif", ContentType: "image/gif", Body: strings.NewReader("")})
	require.NoError(t, err)
	assert.Equal(t, editor.UploadPending, task.Result().Status)

	require.True(t, s.Delete(context.Background()))
	close(up.release)
	res := wait(t, task)

	assert.True(t, res.Discarded)
	assert.Equal(t, []string{"P"}, ed.Document().IDs())
	assert.Empty(t, em.Named(editor.EventUploadSucceeded))
}

func TestUpload_CancelledContextDoesNotAbort(t *testing.T) {
	up := &fakeUploader{release: make(chan struct{})}
	ed, _ := newEditor(t, []domain.Block{block("I", domain.BlockTypeImage)}, editor.Options{Uploader: up})
	s, _ := ed.Media("I")

	ctx, cancel := context.WithCancel(context.Background())
	task, err := s.Upload(ctx, editor.File{Name: "a.webp", ContentType: "image/webp", Body: strings.NewReader("")})
	require.NoError(t, err)
	cancel()
	close(up.release)

	assert.Equal(t, editor.UploadSucceeded, wait(t, task).Status)
	require.NoError(t, ed.WaitUploads(context.Background()))
}

func TestSetURL_Video(t *testing.T) {
	ctx := context.Background()
	ed, _ := newEditor(t, []domain.Block{block("V", domain.BlockTypeVideo)}, editor.Options{Classifier: embed.NewClassifier("")})
	s, _ := ed.Media("V")

	url, err := s.SetURL(ctx, "https://youtu.be/abc12345678")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/embed/abc12345678", url)
	b, _ := ed.Document().Block("V")
	assert.Equal(t, domain.VideoData{URL: "https://www.youtube.com/embed/abc12345678", IsEmbed: true}, decode[domain.VideoData](t, b.Data))

	_, err = s.SetURL(ctx, "https://mystorage.example/video.mp4")
	require.NoError(t, err)
	b, _ = ed.Document().Block("V")
	assert.Equal(t, domain.VideoData{URL: "https://mystorage.example/video.mp4", IsEmbed: false}, decode[domain.VideoData](t, b.Data))
}

func TestSetURL_ImageStoresAsTyped(t *testing.T) {
	ed, _ := newEditor(t, []domain.Block{block("I", domain.BlockTypeImage)}, editor.Options{})
	s, _ := ed.Media("I")
	url, err := s.SetURL(context.Background(), "  https://youtu.be/abc12345678 ")
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/abc12345678", url)
}

func TestSetURL_RejectsScriptSchemes(t *testing.T) {
	ctx := context.Background()
	v := block("V", domain.BlockTypeVideo)
	v.Data = json.RawMessage(`{"url":"https://cdn.example/keep.mp4","caption":"","isEmbed":false}`)
	ed, _ := newEditor(t, []domain.Block{v, block("I", domain.BlockTypeImage)}, editor.Options{Classifier: embed.NewClassifier("")})

	video, _ := ed.Media("V")
	for _, raw := range []string{"javascript:alert(1)", "java\tscript:alert(1)", "data:text/html,hi"} {
		_, err := video.SetURL(ctx, raw)
		assert.ErrorIs(t, err, editor.ErrUnsafeURL, raw)
	}
	b, _ := ed.Document().Block("V")
	assert.Equal(t, "https://cdn.example/keep.mp4", decode[domain.VideoData](t, b.Data).URL)

	image, _ := ed.Media("I")
	_, err := image.SetURL(ctx, "vbscript:msgbox(1)")
	assert.ErrorIs(t, err, editor.ErrUnsafeURL)
}

func TestUpload_NilBodyIsRejected(t *testing.T) {
	up := &fakeUploader{}
	ed, em := newEditor(t, []domain.Block{block("I", domain.BlockTypeImage)}, editor.Options{Uploader: up})
	s, _ := ed.Media("I")

	task, err := s.Upload(context.Background(), editor.File{Name: "photo.png"})
	require.Error(t, err)
	assert.Nil(t, task)
	assert.Zero(t, up.callCount())
	assert.Empty(t, em.Named(editor.EventUploadPending))
}

func TestSetCaption_KeepsUnknownFields(t *testing.T) {
	img := block("I", domain.BlockTypeImage)
	img.Data = json.RawMessage(`{"url":"u","caption":"","credit":"Jane"}`)
	ed, _ := newEditor(t, []domain.Block{img}, editor.Options{})
	s, _ := ed.Media("I")

	require.NoError(t, s.SetCaption(context.Background(), "  anything <goes> "))
	b, _ := ed.Document().Block("I")
	assert.JSONEq(t, `{"url":"u","caption":"  anything <goes> ","credit":"Jane"}`, string(b.Data))
}

func TestMedia_WrongSurface(t *testing.T) {
	ed, _ := newEditor(t, []domain.Block{para("P", "")}, editor.Options{})
	_, err := ed.Media("P")
	assert.ErrorIs(t, err, editor.ErrWrongSurface)
}
