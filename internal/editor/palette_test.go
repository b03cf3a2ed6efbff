package editor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"postcms/internal/editor"
)

func itemIDs(items []editor.PaletteItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPalette_FilterIsCaseInsensitiveSubstring(t *testing.T) {
	p := editor.NewPalette(nil)
	p.Open("P", editor.Point{}, editor.Viewport{})

	p.SetQuery("HEAD")
	assert.Equal(t, []string{"heading-1", "heading-2"}, itemIDs(p.Items()))

	p.SetQuery("e")
	assert.Equal(t, []string{"heading-1", "heading-2", "text", "image", "video"}, itemIDs(p.Items()))

	p.SetQuery("deo")
	assert.Equal(t, []string{"video"}, itemIDs(p.Items()))

	p.SetQuery("table")
	assert.Empty(t, p.Items())
	_, ok := p.Highlighted()
	assert.False(t, ok)
}

func TestPalette_NavigationWraps(t *testing.T) {
	p := editor.NewPalette(nil)
	p.Open("P", editor.Point{}, editor.Viewport{})

	it, _ := p.Highlighted()
	assert.Equal(t, "heading-1", it.ID)

	p.Move(-1)
	it, _ = p.Highlighted()
	assert.Equal(t, "video", it.ID)

	p.Move(1)
	it, _ = p.Highlighted()
	assert.Equal(t, "heading-1", it.ID)

	p.SetQuery("heading")
	p.Move(1)
	p.Move(1)
	it, _ = p.Highlighted()
	assert.Equal(t, "heading-1", it.ID)
}

func TestPalette_FlipsToStayInViewport(t *testing.T) {
	p := editor.NewPalette(nil)
	vp := editor.Viewport{Width: 1000, Height: 800}

	p.Open("P", editor.Point{X: 10, Y: 10}, vp)
	assert.Equal(t, editor.Point{X: 10, Y: 10}, p.Position())

	p.Open("P", editor.Point{X: 900, Y: 700}, vp)
	w, h := p.Size()
	assert.Equal(t, float64(240), w)
	assert.Equal(t, float64(5*36+8), h)
	assert.Equal(t, editor.Point{X: 660, Y: 512}, p.Position())

	assert.True(t, p.Contains(editor.Point{X: 700, Y: 600}))
	assert.False(t, p.Contains(editor.Point{X: 950, Y: 750}))
}

func TestPalette_CloseResets(t *testing.T) {
	p := editor.NewPalette(nil)
	assert.False(t, p.Close())

	p.Open("P", editor.Point{}, editor.Viewport{})
	p.SetQuery("img")
	assert.True(t, p.Close())
	assert.False(t, p.IsOpen())
	assert.Empty(t, p.Owner())
	assert.Empty(t, p.Items())
	assert.False(t, p.Contains(editor.Point{}))
}
