// Package editor is the in-memory editing core: the document controller that
// owns a post's block list, the text and media surfaces that translate input
// events into block updates, and the slash command palette.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"postcms/internal/blocks"
	"postcms/internal/domain"
)

var (
	ErrBlockNotFound   = errors.New("block not found")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrWrongSurface    = errors.New("block does not have this kind of surface")
	ErrUnsafeURL       = errors.New("media URL must be http, https or relative")
)

// ─────────────────────────────────────────────────────────────
// Document Controller
// ─────────────────────────────────────────────────────────────

// Document is the only writer of a post's block list. Every mutation takes
// the lock, so mutations apply in arrival order and each targets its block
// by id rather than index.
type Document struct {
	mu       sync.Mutex
	registry *blocks.Registry
	blocks   []domain.Block
}

// NewDocument creates a controller over initial. An empty list becomes a
// single default paragraph. Duplicate or empty ids are rejected.
func NewDocument(registry *blocks.Registry, initial []domain.Block) (*Document, error) {
	if registry == nil {
		registry = blocks.Builtin()
	}
	d := &Document{registry: registry}
	if len(initial) == 0 {
		p, err := registry.New(domain.BlockTypeParagraph)
		if err != nil {
			return nil, err
		}
		d.blocks = []domain.Block{p}
		return d, nil
	}
	if err := domain.ValidateBlocks(initial); err != nil {
		return nil, err
	}
	d.blocks = make([]domain.Block, len(initial))
	for i, b := range initial {
		d.blocks[i] = b.Clone()
	}
	return d, nil
}

func (d *Document) indexOf(id string) int {
	return slices.IndexFunc(d.blocks, func(b domain.Block) bool { return b.ID == id })
}

// AddBlock inserts a default block of type t after afterID, or appends it
// when afterID is empty or unknown.
func (d *Document) AddBlock(t domain.BlockType, afterID string) (domain.Block, error) {
	b, err := d.registry.New(t)
	if err != nil {
		return domain.Block{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.insertAfter(b, afterID)
	return b.Clone(), nil
}

// InsertBlock inserts a prepared block after afterID. The block gets a fresh
// id if it has none or its id is already taken.
func (d *Document) InsertBlock(b domain.Block, afterID string) (domain.Block, error) {
	if _, ok := d.registry.Lookup(b.Type); !ok {
		return domain.Block{}, fmt.Errorf("%w: %q", blocks.ErrUnknownBlockType, b.Type)
	}
	b = b.Clone()
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.ID == "" || d.indexOf(b.ID) >= 0 {
		b.ID = uuid.NewString()
	}
	d.insertAfter(b, afterID)
	return b.Clone(), nil
}

func (d *Document) insertAfter(b domain.Block, afterID string) {
	i := -1
	if afterID != "" {
		i = d.indexOf(afterID)
	}
	if i < 0 {
		d.blocks = append(d.blocks, b)
		return
	}
	d.blocks = slices.Insert(d.blocks, i+1, b)
}

// UpdateBlock replaces the block's data and style in place. A nil payload
// leaves that part unchanged. It reports whether the block exists.
func (d *Document) UpdateBlock(id string, data, style json.RawMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return false
	}
	if data != nil {
		d.blocks[i].Data = append(json.RawMessage(nil), data...)
	}
	if style != nil {
		d.blocks[i].Style = append(json.RawMessage(nil), style...)
	}
	return true
}

// Edit runs fn on the block under the document lock, so a read-modify-write
// cannot interleave with other mutations. fn must not call back into the
// document. Changes to the block's id or type are ignored.
func (d *Document) Edit(id string, fn func(b *domain.Block) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return fmt.Errorf("edit %s: %w", id, ErrBlockNotFound)
	}
	b := d.blocks[i].Clone()
	if err := fn(&b); err != nil {
		return err
	}
	b.ID, b.Type = d.blocks[i].ID, d.blocks[i].Type
	d.blocks[i] = b
	return nil
}

// RemoveBlock deletes the block. Removing the only block resets the document
// to one default paragraph instead. It reports whether the block existed.
func (d *Document) RemoveBlock(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return false
	}
	if len(d.blocks) == 1 {
		p, err := d.registry.New(domain.BlockTypeParagraph)
		if err != nil {
			// No paragraph registration: keep the block rather than empty the document.
			return false
		}
		d.blocks[0] = p
		return true
	}
	d.blocks = slices.Delete(d.blocks, i, i+1)
	return true
}

// Reorder moves fromID into toID's slot, shifting the blocks in between.
// Moving A onto C in [A B C D] gives [B C A D].
func (d *Document) Reorder(fromID, toID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	from, to := d.indexOf(fromID), d.indexOf(toID)
	if from < 0 || to < 0 {
		return false
	}
	if from == to {
		return true
	}
	b := d.blocks[from]
	d.blocks = slices.Delete(d.blocks, from, from+1)
	d.blocks = slices.Insert(d.blocks, to, b)
	return true
}

// ReplaceBlock swaps the block for nb at the same position. The old id is
// discarded: nb keeps its own id, or gets a fresh one if it has none or
// reuses the old one.
func (d *Document) ReplaceBlock(id string, nb domain.Block) (domain.Block, error) {
	if _, ok := d.registry.Lookup(nb.Type); !ok {
		return domain.Block{}, fmt.Errorf("%w: %q", blocks.ErrUnknownBlockType, nb.Type)
	}
	nb = nb.Clone()
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return domain.Block{}, fmt.Errorf("replace %s: %w", id, ErrBlockNotFound)
	}
	if nb.ID == "" || nb.ID == id {
		nb.ID = uuid.NewString()
	}
	if j := d.indexOf(nb.ID); j >= 0 {
		return domain.Block{}, fmt.Errorf("%w: duplicate block id %s", domain.ErrInvalidDocument, nb.ID)
	}
	d.blocks[i] = nb
	return nb.Clone(), nil
}

// ── Readers ────────────────────────────────────────────────

// Blocks returns a deep copy of the block list.
func (d *Document) Blocks() []domain.Block {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Block, 0, len(d.blocks))
	if err := copier.CopyWithOption(&out, d.blocks, copier.Option{DeepCopy: true}); err != nil {
		out = out[:0]
		for _, b := range d.blocks {
			out = append(out, b.Clone())
		}
	}
	return out
}

// Block returns a copy of the block with the given id.
func (d *Document) Block(id string) (domain.Block, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return domain.Block{}, false
	}
	return d.blocks[i].Clone(), true
}

// Has reports whether a block with the given id is in the document.
func (d *Document) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.indexOf(id) >= 0
}

// Len is the number of blocks.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.blocks)
}

// IDs lists block ids in document order.
func (d *Document) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, len(d.blocks))
	for i, b := range d.blocks {
		ids[i] = b.ID
	}
	return ids
}

// Registry is the block registry the document creates blocks from.
func (d *Document) Registry() *blocks.Registry { return d.registry }

// ─────────────────────────────────────────────────────────────
// Drag adapter
// ─────────────────────────────────────────────────────────────

// DragAdapter turns drag gestures into a single Reorder on drop. Nothing in
// the document changes while a drag is in progress.
type DragAdapter struct {
	doc      *Document
	mu       sync.Mutex
	dragging string
	over     string
}

func NewDragAdapter(doc *Document) *DragAdapter {
	return &DragAdapter{doc: doc}
}

// Start begins dragging the block with the given id.
func (a *DragAdapter) Start(id string) bool {
	if !a.doc.Has(id) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dragging, a.over = id, ""
	return true
}

// Over records the block currently under the pointer.
func (a *DragAdapter) Over(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dragging != "" {
		a.over = id
	}
}

// Drop resolves the drag onto targetID, or onto the last Over target when
// targetID is empty.
func (a *DragAdapter) Drop(targetID string) bool {
	a.mu.Lock()
	from, over := a.dragging, a.over
	a.dragging, a.over = "", ""
	a.mu.Unlock()
	if targetID == "" {
		targetID = over
	}
	if from == "" || targetID == "" {
		return false
	}
	return a.doc.Reorder(from, targetID)
}

// Cancel abandons the drag.
func (a *DragAdapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dragging, a.over = "", ""
}

// Dragging returns the id being dragged, if any.
func (a *DragAdapter) Dragging() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dragging
}
