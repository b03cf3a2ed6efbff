package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcms/internal/cache"
	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/service"
	"postcms/internal/storage"
)

type postFixture struct {
	svc       *service.PostService
	posts     *storage.PostStore
	revisions *storage.RevisionStore
	emitter   *events.MockEmitter
	cache     *cache.MemoryCache
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "postcms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &postFixture{
		posts:     storage.NewPostStore(db),
		revisions: storage.NewRevisionStore(db),
		emitter:   &events.MockEmitter{},
		cache:     cache.NewMemoryCache(0, 0),
	}
	f.svc = service.NewPostService(service.PostServiceDeps{
		Posts:     f.posts,
		Revisions: f.revisions,
		Cache:     f.cache,
		Emitter:   f.emitter,
	})
	return f
}

func heading(id, text string) domain.Block {
	return domain.Block{
		ID:    id,
		Type:  domain.BlockTypeHeading,
		Data:  domain.MustEncode(domain.HeadingData{Text: text, HTML: text}),
		Style: domain.MustEncode(domain.HeadingStyle{Level: 2}),
	}
}

func TestPostService_CreateStartsWithOneParagraph(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "  Whole Life vs Term  ")
	require.NoError(t, err)
	assert.Equal(t, "Whole Life vs Term", p.Title)
	assert.Equal(t, "whole-life-vs-term", p.Slug)
	require.Len(t, p.Blocks, 1)
	assert.Equal(t, domain.BlockTypeParagraph, p.Blocks[0].Type)

	h, err := f.svc.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, h.Revisions, 1)
	assert.Equal(t, "created", h.Revisions[0].Label)

	saved := f.emitter.Named(service.EventPostSaved)
	require.Len(t, saved, 1)
	assert.Equal(t, p.ID, saved[0].Data.(service.PostEvent).PostID)
}

func TestPostService_SaveChainsRevisions(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "Annuities")
	require.NoError(t, err)
	p.Blocks = append(p.Blocks, heading("h", "Payout"))
	rev, err := f.svc.Save(ctx, p, "edit")
	require.NoError(t, err)

	h, err := f.svc.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, h.Revisions, 2)
	assert.Equal(t, rev.ID, h.CurrentID)
	require.NotNil(t, rev.ParentID)
	assert.Equal(t, h.Revisions[0].ID, *rev.ParentID)

	var snap []domain.Block
	require.NoError(t, json.Unmarshal([]byte(rev.SnapshotJSON), &snap))
	if diff := cmp.Diff(p.Blocks, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestPostService_RestoreBranchesHistory(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "Riders")
	require.NoError(t, err)
	original := p.Blocks
	first, err := f.svc.History(ctx, p.ID)
	require.NoError(t, err)
	firstID := first.Revisions[0].ID

	p.Blocks = []domain.Block{heading("h", "Changed")}
	_, err = f.svc.Save(ctx, p, "edit")
	require.NoError(t, err)

	restored, err := f.svc.Restore(ctx, p.ID, firstID)
	require.NoError(t, err)
	if diff := cmp.Diff(original, restored.Blocks); diff != "" {
		t.Errorf("restored blocks (-want +got):\n%s", diff)
	}
	stored, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, restored.Blocks, stored.Blocks)

	h, err := f.svc.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, firstID, h.CurrentID)

	next, err := f.svc.Save(ctx, stored, "after restore")
	require.NoError(t, err)
	require.NotNil(t, next.ParentID)
	assert.Equal(t, firstID, *next.ParentID)
	assert.Len(t, f.emitter.Named(service.EventPostRestored), 1)
}

func TestPostService_RestoreRejectsForeignRevision(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, "A")
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, "B")
	require.NoError(t, err)
	hb, err := f.svc.History(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Restore(ctx, a.ID, hb.CurrentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostService_DeleteClearsHistory(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "Gone")
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, p.ID))

	_, err = f.svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	h, err := f.svc.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, f.svc.Delete(ctx, p.ID), domain.ErrNotFound)
}

func TestPostService_RenderUsesCache(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "Cached")
	require.NoError(t, err)
	p.Blocks = []domain.Block{heading("h", "Hello")}
	_, err = f.svc.Save(ctx, p, "")
	require.NoError(t, err)

	out, err := f.svc.Render(ctx, p.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "<h2")
	assert.Contains(t, out, "Hello</h2>")
	assert.Equal(t, 1, f.cache.Len())

	stored, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(ctx, cache.RenderKey(p.ID, stored.UpdatedAt), "cached", 0))
	out, err = f.svc.Render(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached", out)
}

func TestPostService_ExportImportRoundTrip(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, "Portable")
	require.NoError(t, err)
	p.Blocks = append(p.Blocks, domain.Block{
		ID:   "custom",
		Type: "callout",
		Data: json.RawMessage(`{"tone":"warn","html":"<b>Read</b>"}`),
	})
	_, err = f.svc.Save(ctx, p, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, p.ID, &buf))
	assert.Contains(t, buf.String(), "<b>Read</b>")

	other := newPostFixture(t)
	imported, err := other.svc.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, p.ID, imported.ID)

	got, err := other.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, domain.BlockType("callout"), got.Blocks[1].Type)
	assert.JSONEq(t, `{"tone":"warn","html":"<b>Read</b>"}`, string(got.Blocks[1].Data))
}

func TestPostService_ImportFillsMissingIDs(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	p, err := f.svc.Import(ctx, strings.NewReader(`{"title":"Bare","blocks":[{"type":"paragraph","data":{"text":"hi","html":""}}]}`))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	require.Len(t, p.Blocks, 1)
	assert.NotEmpty(t, p.Blocks[0].ID)
}

// gatedPosts blocks SavePost until release is closed.
type gatedPosts struct {
	domain.PostStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPosts) SavePost(ctx context.Context, p *domain.Post) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.PostStore.SavePost(ctx, p)
}

func TestPostService_RejectsConcurrentSaveOfSamePost(t *testing.T) {
	base := newPostFixture(t)
	gate := &gatedPosts{PostStore: base.posts, entered: make(chan struct{}), release: make(chan struct{})}
	svc := service.NewPostService(service.PostServiceDeps{Posts: gate})
	ctx := context.Background()

	p := &domain.Post{ID: "p", Title: "T", Blocks: []domain.Block{heading("h", "x")}}
	errc := make(chan error, 1)
	go func() {
		_, err := svc.Save(ctx, p, "")
		errc <- err
	}()
	<-gate.entered

	_, err := svc.Save(ctx, &domain.Post{ID: "p", Title: "T", Blocks: p.Blocks}, "")
	assert.ErrorIs(t, err, service.ErrSaveInProgress)

	close(gate.release)
	require.NoError(t, <-errc)
	svc.WaitSaves(ctx)
}
