package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"postcms/internal/blocks"
	"postcms/internal/domain"
	"postcms/internal/embed"
	"postcms/internal/events"
	"postcms/internal/logging"
	"postcms/internal/richtext"
)

// ErrPaletteClosed is returned when a palette action arrives while the
// palette is closed.
var ErrPaletteClosed = errors.New("slash palette is not open")

// Options configures an Editor.
type Options struct {
	Registry     *blocks.Registry
	Uploader     Uploader
	Classifier   *embed.Classifier
	Emitter      events.EventEmitter
	Logger       *zap.Logger
	Viewport     Viewport
	PaletteItems []PaletteItem
	Now          func() time.Time
}

// Editor is one editing session over a document: it routes input events to
// the block surfaces and the slash palette.
type Editor struct {
	doc        *Document
	drag       *DragAdapter
	palette    *Palette
	uploader   Uploader
	classifier *embed.Classifier
	emitter    events.EventEmitter
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	viewport Viewport
	uploads  map[string]*UploadTask // latest task per block
}

// New starts a session over initial.
func New(initial []domain.Block, opts Options) (*Editor, error) {
	doc, err := NewDocument(opts.Registry, initial)
	if err != nil {
		return nil, err
	}
	if opts.Classifier == nil {
		opts.Classifier = embed.NewClassifier("")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Editor{
		doc:        doc,
		drag:       NewDragAdapter(doc),
		palette:    NewPalette(opts.PaletteItems),
		uploader:   opts.Uploader,
		classifier: opts.Classifier,
		emitter:    events.OrNop(opts.Emitter),
		logger:     logging.OrNop(opts.Logger).Named("editor"),
		now:        opts.Now,
		viewport:   opts.Viewport,
		uploads:    make(map[string]*UploadTask),
	}, nil
}

func (e *Editor) Document() *Document { return e.doc }

func (e *Editor) Drag() *DragAdapter { return e.drag }

func (e *Editor) Palette() *Palette { return e.palette }

// Blocks returns a deep copy of the current block list.
func (e *Editor) Blocks() []domain.Block { return e.doc.Blocks() }

// SetViewport updates the area the palette must fit in.
func (e *Editor) SetViewport(vp Viewport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = vp
}

// ── Surfaces ───────────────────────────────────────────────

// Text returns the text surface of a heading or paragraph block.
func (e *Editor) Text(id string) (*TextSurface, error) {
	k, err := e.kindOf(id)
	if err != nil {
		return nil, err
	}
	if k.Surface != blocks.SurfaceText {
		return nil, fmt.Errorf("%s is a %s block: %w", id, k.Type, ErrWrongSurface)
	}
	return &TextSurface{doc: e.doc, id: id, emitter: e.emitter, logger: e.logger}, nil
}

// Media returns the media surface of an image or video block.
func (e *Editor) Media(id string) (*MediaSurface, error) {
	k, err := e.kindOf(id)
	if err != nil {
		return nil, err
	}
	if k.Surface != blocks.SurfaceMedia {
		return nil, fmt.Errorf("%s is a %s block: %w", id, k.Type, ErrWrongSurface)
	}
	return &MediaSurface{
		doc:        e.doc,
		id:         id,
		kind:       k,
		uploader:   e.uploader,
		classifier: e.classifier,
		emitter:    e.emitter,
		logger:     e.logger,
		track:      e.trackUpload,
		now:        e.now,
	}, nil
}

func (e *Editor) kindOf(id string) (blocks.Kind, error) {
	b, ok := e.doc.Block(id)
	if !ok {
		return blocks.Kind{}, fmt.Errorf("%s: %w", id, ErrBlockNotFound)
	}
	k, ok := e.doc.Registry().Lookup(b.Type)
	if !ok {
		return blocks.Kind{}, fmt.Errorf("%w: %q", blocks.ErrUnknownBlockType, b.Type)
	}
	return k, nil
}

func (e *Editor) trackUpload(t *UploadTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploads[t.Result().BlockID] = t
}

// Upload returns the latest upload task started for a block.
func (e *Editor) Upload(blockID string) (*UploadTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.uploads[blockID]
	return t, ok
}

// WaitUploads blocks until every tracked upload has settled or ctx ends.
func (e *Editor) WaitUploads(ctx context.Context) error {
	e.mu.Lock()
	tasks := make([]*UploadTask, 0, len(e.uploads))
	for _, t := range e.uploads {
		tasks = append(tasks, t)
	}
	e.mu.Unlock()
	for _, t := range tasks {
		if _, err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ── Input routing ──────────────────────────────────────────

// Input feeds typed markup to a text block. A trailing slash in a paragraph
// opens the palette at caret.
func (e *Editor) Input(ctx context.Context, id, markup string, caret Point) error {
	s, err := e.Text(id)
	if err != nil {
		return err
	}
	trig, err := s.Input(ctx, markup, caret)
	if err != nil {
		return err
	}
	switch {
	case trig != nil:
		e.openPalette(ctx, id, caret)
	case e.palette.IsOpen() && e.palette.Owner() == id:
		// The slash was typed away.
		e.ClosePalette(ctx)
	}
	return nil
}

// KeyDown routes a key press. While the palette is open, navigation keys
// drive it; otherwise the key goes to the block's text surface.
func (e *Editor) KeyDown(ctx context.Context, id string, key Key) (handled bool, err error) {
	if e.palette.IsOpen() {
		switch key.Name {
		case KeyArrowDown:
			e.palette.Move(1)
			return true, nil
		case KeyArrowUp:
			e.palette.Move(-1)
			return true, nil
		case KeyEscape:
			e.ClosePalette(ctx)
			return true, nil
		case KeyEnter:
			it, ok := e.palette.Highlighted()
			if !ok {
				return true, nil
			}
			_, err := e.selectItem(ctx, it)
			return true, err
		}
	}
	s, err := e.Text(id)
	if err != nil {
		return false, err
	}
	return s.KeyDown(ctx, key)
}

// MouseUp forwards a selection change to a text block.
func (e *Editor) MouseUp(ctx context.Context, id string, sel richtext.Selection, rect Rect) (*ToolbarShown, error) {
	s, err := e.Text(id)
	if err != nil {
		return nil, err
	}
	return s.MouseUp(ctx, sel, rect)
}

// Format applies a toolbar command to a text block.
func (e *Editor) Format(ctx context.Context, id string, cmd richtext.Command, value string, sel richtext.Selection) (bool, error) {
	s, err := e.Text(id)
	if err != nil {
		return false, err
	}
	return s.Format(ctx, cmd, value, sel)
}

// Click closes the palette when pt is outside it.
func (e *Editor) Click(ctx context.Context, pt Point) {
	if e.palette.IsOpen() && !e.palette.Contains(pt) {
		e.ClosePalette(ctx)
	}
}

// ── Slash palette ──────────────────────────────────────────

func (e *Editor) openPalette(ctx context.Context, owner string, anchor Point) {
	e.mu.Lock()
	vp := e.viewport
	e.mu.Unlock()
	e.palette.Open(owner, anchor, vp)
	e.emitter.Emit(ctx, EventPaletteOpened, PaletteOpened{Owner: owner, Position: e.palette.Position()})
}

// OpenPalette opens the palette for a paragraph as if "/" had been typed.
func (e *Editor) OpenPalette(ctx context.Context, owner string, anchor Point) error {
	b, ok := e.doc.Block(owner)
	if !ok {
		return fmt.Errorf("open palette %s: %w", owner, ErrBlockNotFound)
	}
	if b.Type != domain.BlockTypeParagraph {
		return fmt.Errorf("open palette on %s block: %w", b.Type, ErrWrongSurface)
	}
	e.openPalette(ctx, owner, anchor)
	return nil
}

// ClosePalette dismisses the palette without selecting.
func (e *Editor) ClosePalette(ctx context.Context) {
	if e.palette.Close() {
		e.emitter.Emit(ctx, EventPaletteClosed, nil)
	}
}

// FilterPalette narrows the palette items.
func (e *Editor) FilterPalette(q string) []PaletteItem {
	e.palette.SetQuery(q)
	return e.palette.Items()
}

// SelectPaletteItem selects a visible item by id.
func (e *Editor) SelectPaletteItem(ctx context.Context, itemID string) (domain.Block, error) {
	if !e.palette.IsOpen() {
		return domain.Block{}, ErrPaletteClosed
	}
	it, ok := e.palette.Lookup(itemID)
	if !ok {
		return domain.Block{}, fmt.Errorf("palette item %q is not available", itemID)
	}
	return e.selectItem(ctx, it)
}

// selectItem applies a palette choice to the owner block and closes the
// palette. An owner holding nothing but the slash is replaced in place;
// otherwise the slash is stripped and the new block goes after the owner.
func (e *Editor) selectItem(ctx context.Context, it PaletteItem) (domain.Block, error) {
	owner := e.palette.Owner()
	defer e.ClosePalette(ctx)

	nb, err := e.newFromItem(it)
	if err != nil {
		return domain.Block{}, err
	}
	b, ok := e.doc.Block(owner)
	if !ok {
		return domain.Block{}, fmt.Errorf("slash owner %s: %w", owner, ErrBlockNotFound)
	}
	r, err := loadRegion(b)
	if err != nil {
		return domain.Block{}, err
	}
	if b.Type == domain.BlockTypeParagraph && (r.IsEmpty() || r.Text() == "/") {
		return e.doc.ReplaceBlock(owner, nb)
	}

	var change ContentChanged
	err = e.doc.Edit(owner, func(b *domain.Block) error {
		r, err := loadRegion(*b)
		if err != nil {
			return err
		}
		r.TrimTrailing("/")
		data, err := textPayload(*b, r)
		if err != nil {
			return err
		}
		b.Data = data
		change = ContentChanged{BlockID: b.ID, Text: r.Text(), HTML: r.HTML()}
		return nil
	})
	if err != nil {
		return domain.Block{}, err
	}
	e.emitter.Emit(ctx, EventContentChanged, change)
	return e.doc.InsertBlock(nb, owner)
}

func (e *Editor) newFromItem(it PaletteItem) (domain.Block, error) {
	nb, err := e.doc.Registry().New(it.Type)
	if err != nil {
		return domain.Block{}, err
	}
	if it.Type == domain.BlockTypeHeading && it.Level > 0 {
		style, err := domain.DecodeStyle[domain.HeadingStyle](nb)
		if err != nil {
			return domain.Block{}, err
		}
		style.Level = it.Level
		if nb.Style, err = domain.MergePayload(nb.Style, style); err != nil {
			return domain.Block{}, err
		}
	}
	return nb, nil
}
