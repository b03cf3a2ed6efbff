package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcms/internal/domain"
	"postcms/internal/editor"
	"postcms/internal/service"
)

func newSessions(t *testing.T) (*service.Sessions, *postFixture) {
	t.Helper()
	f := newPostFixture(t)
	s := service.NewSessions(service.SessionDeps{
		Posts:       f.svc,
		Emitter:     f.emitter,
		Viewport:    editor.Viewport{Width: 1280, Height: 800},
		ExternalDir: t.TempDir(),
	})
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, f
}

func TestSessions_OpenEditSave(t *testing.T) {
	ctx := context.Background()
	sessions, f := newSessions(t)

	p, err := f.svc.Create(ctx, "Claims")
	require.NoError(t, err)
	sess, err := sessions.Open(ctx, p.ID)
	require.NoError(t, err)

	again, err := sessions.Open(ctx, p.ID)
	require.NoError(t, err)
	assert.Same(t, sess, again)

	first := p.Blocks[0].ID
	require.NoError(t, sess.Editor().Input(ctx, first, "Filing a <b>claim</b>", editor.Point{}))
	_, err = sess.Editor().Document().AddBlock(domain.BlockTypeHeading, first)
	require.NoError(t, err)

	saved, rev, err := sessions.Save(ctx, p.ID, "draft")
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, "draft", rev.Label)

	stored, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Blocks, 2)
	assert.Equal(t, saved.Blocks, stored.Blocks)
	data, err := domain.DecodeData[domain.ParagraphData](stored.Blocks[0])
	require.NoError(t, err)
	assert.Equal(t, "Filing a <b>claim</b>", data.HTML)
}

func TestSessions_ReloadDropsUnsavedEdits(t *testing.T) {
	ctx := context.Background()
	sessions, f := newSessions(t)

	p, err := f.svc.Create(ctx, "Deductibles")
	require.NoError(t, err)
	sess, err := sessions.Open(ctx, p.ID)
	require.NoError(t, err)
	_, err = sess.Editor().Document().AddBlock(domain.BlockTypeImage, "")
	require.NoError(t, err)
	require.Equal(t, 2, sess.Editor().Document().Len())

	require.NoError(t, sessions.Reload(ctx, p.ID))
	reopened, ok := sessions.Get(p.ID)
	require.True(t, ok)
	assert.NotSame(t, sess, reopened)
	assert.Equal(t, 1, reopened.Editor().Document().Len())
}

func TestSessions_SetTitleAppliesOnSave(t *testing.T) {
	ctx := context.Background()
	sessions, f := newSessions(t)

	p, err := f.svc.Create(ctx, "Old title")
	require.NoError(t, err)
	_, err = sessions.Open(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, sessions.SetTitle(p.ID, "New Title"))
	_, _, err = sessions.Save(ctx, p.ID, "")
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Title", stored.Title)
	assert.Equal(t, "new-title", stored.Slug)
}

func TestSessions_SaveRequiresOpenSession(t *testing.T) {
	sessions, _ := newSessions(t)
	_, _, err := sessions.Save(context.Background(), "nope", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessions_EditExternally(t *testing.T) {
	ctx := context.Background()
	sessions, f := newSessions(t)

	p, err := f.svc.Create(ctx, "External")
	require.NoError(t, err)
	sess, err := sessions.Open(ctx, p.ID)
	require.NoError(t, err)
	id := p.Blocks[0].ID
	require.NoError(t, sess.Editor().Input(ctx, id, "start", editor.Point{}))

	path, err := sessions.EditExternally(ctx, p.ID, id)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "start\n", string(content))

	require.NoError(t, os.WriteFile(path, []byte("<i>edited</i>\n"), 0644))
	require.Eventually(t, func() bool {
		b, _ := sess.Editor().Document().Block(id)
		d, err := domain.DecodeData[domain.ParagraphData](b)
		return err == nil && d.HTML == "<i>edited</i>"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSessions_DirtyTracksUnsavedEdits(t *testing.T) {
	ctx := context.Background()
	sessions, f := newSessions(t)

	p, err := f.svc.Create(ctx, "Cyber Liability")
	require.NoError(t, err)
	sess, err := sessions.Open(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, sess.Dirty())

	require.NoError(t, sess.Editor().Input(ctx, p.Blocks[0].ID, "Breach costs", editor.Point{}))
	assert.True(t, sess.Dirty())

	_, _, err = sessions.Save(ctx, p.ID, "")
	require.NoError(t, err)
	assert.False(t, sess.Dirty())
}
