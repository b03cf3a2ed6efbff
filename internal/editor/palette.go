package editor

import (
	"strings"
	"sync"

	"postcms/internal/domain"
)

// PaletteItem is one entry of the slash command menu.
type PaletteItem struct {
	ID    string           `json:"id"`
	Label string           `json:"label"`
	Type  domain.BlockType `json:"type"`
	// Level overrides the heading level of the inserted block when non-zero.
	Level int `json:"level,omitempty"`
}

var DefaultPaletteItems = []PaletteItem{
	{ID: "heading-1", Label: "Heading 1", Type: domain.BlockTypeHeading, Level: 1},
	{ID: "heading-2", Label: "Heading 2", Type: domain.BlockTypeHeading, Level: 2},
	{ID: "text", Label: "Text", Type: domain.BlockTypeParagraph},
	{ID: "image", Label: "Image", Type: domain.BlockTypeImage},
	{ID: "video", Label: "Video", Type: domain.BlockTypeVideo},
}

const (
	PaletteWidth      = 240
	PaletteItemHeight = 36
	PalettePadding    = 8
)

// Palette is the slash command menu: closed, or open at an anchor on
// behalf of an owner block.
type Palette struct {
	mu        sync.Mutex
	items     []PaletteItem
	open      bool
	owner     string
	anchor    Point
	viewport  Viewport
	query     string
	filtered  []PaletteItem
	highlight int
}

func NewPalette(items []PaletteItem) *Palette {
	if len(items) == 0 {
		items = DefaultPaletteItems
	}
	return &Palette{items: items}
}

// Open shows the menu for owner at anchor, with an empty filter.
func (p *Palette) Open(owner string, anchor Point, vp Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	p.owner = owner
	p.anchor = anchor
	p.viewport = vp
	p.query = ""
	p.filtered = append([]PaletteItem(nil), p.items...)
	p.highlight = 0
}

// Close hides the menu. It reports whether it was open.
func (p *Palette) Close() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	was := p.open
	p.open = false
	p.owner = ""
	p.query = ""
	p.filtered = nil
	p.highlight = 0
	return was
}

func (p *Palette) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *Palette) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

// SetQuery filters items by case-insensitive label substring and resets the
// highlight to the first match.
func (p *Palette) SetQuery(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return
	}
	p.query = q
	needle := strings.ToLower(strings.TrimSpace(q))
	p.filtered = p.filtered[:0]
	for _, it := range p.items {
		if strings.Contains(strings.ToLower(it.Label), needle) {
			p.filtered = append(p.filtered, it)
		}
	}
	p.highlight = 0
}

func (p *Palette) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Items returns the currently visible items.
func (p *Palette) Items() []PaletteItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PaletteItem(nil), p.filtered...)
}

// Highlighted returns the highlighted item.
func (p *Palette) Highlighted() (PaletteItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open || len(p.filtered) == 0 {
		return PaletteItem{}, false
	}
	return p.filtered[p.highlight], true
}

// Move shifts the highlight by delta, wrapping at both ends.
func (p *Palette) Move(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.filtered)
	if !p.open || n == 0 {
		return
	}
	p.highlight = ((p.highlight+delta)%n + n) % n
}

// Lookup finds a visible item by id.
func (p *Palette) Lookup(id string) (PaletteItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, it := range p.filtered {
		if it.ID == id {
			return it, true
		}
	}
	return PaletteItem{}, false
}

// Size is the menu's pixel size for the visible items.
func (p *Palette) Size() (w, h float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sizeLocked()
}

func (p *Palette) sizeLocked() (w, h float64) {
	return PaletteWidth, float64(len(p.filtered)*PaletteItemHeight + PalettePadding)
}

// Position is the menu's top-left corner: the anchor, flipped left and/or
// up when the menu would overflow the viewport.
func (p *Palette) Position() Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Palette) positionLocked() Point {
	w, h := p.sizeLocked()
	pos := p.anchor
	if p.viewport.Width > 0 && pos.X+w > p.viewport.Width {
		pos.X = max(p.anchor.X-w, 0)
	}
	if p.viewport.Height > 0 && pos.Y+h > p.viewport.Height {
		pos.Y = max(p.anchor.Y-h, 0)
	}
	return pos
}

// Contains reports whether pt falls inside the open menu.
func (p *Palette) Contains(pt Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return false
	}
	pos := p.positionLocked()
	w, h := p.sizeLocked()
	return pt.X >= pos.X && pt.X <= pos.X+w && pt.Y >= pos.Y && pt.Y <= pos.Y+h
}
