package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"postcms/internal/domain"
	"postcms/internal/events"
	"postcms/internal/richtext"
)

// Toolbar geometry, in pixels.
const (
	ToolbarHeight = 40
	ToolbarGap    = 8
)

// TextSurface is the editing surface of a heading or paragraph block. It
// holds no content of its own: every call reads the block from the document,
// applies the event and writes the result back.
type TextSurface struct {
	doc     *Document
	id      string
	emitter events.EventEmitter
	logger  *zap.Logger
}

// Input replaces the region with markup as typed by the user and emits the
// recomputed content. caret is where the slash palette anchors if the
// paragraph now ends with "/". The returned trigger is non-nil in that case.
func (s *TextSurface) Input(ctx context.Context, markup string, caret Point) (*SlashTriggered, error) {
	r, err := richtext.ParseRegion(markup)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", s.id, err)
	}
	r.Sanitize()
	typ, err := s.commit(ctx, func(domain.Block) (*richtext.Region, error) { return r, nil })
	if err != nil {
		return nil, err
	}
	if typ == domain.BlockTypeParagraph && strings.HasSuffix(r.Text(), "/") {
		ev := &SlashTriggered{BlockID: s.id, Anchor: caret}
		s.emitter.Emit(ctx, EventSlashTriggered, *ev)
		return ev, nil
	}
	return nil, nil
}

// KeyDown handles the structural keys. handled is true when the default
// behavior is suppressed: Enter splits (paragraph without modifiers, heading
// always) and Backspace on empty content deletes the block.
func (s *TextSurface) KeyDown(ctx context.Context, key Key) (handled bool, err error) {
	b, ok := s.doc.Block(s.id)
	if !ok {
		return false, fmt.Errorf("key %s: %w", s.id, ErrBlockNotFound)
	}
	switch key.Name {
	case KeyEnter:
		if b.Type == domain.BlockTypeParagraph && key.HasModifier() {
			return false, nil
		}
		nb, err := s.doc.AddBlock(domain.BlockTypeParagraph, s.id)
		if err != nil {
			return true, fmt.Errorf("split %s: %w", s.id, err)
		}
		s.emitter.Emit(ctx, EventSplitRequested, SplitRequested{BlockID: s.id, NewBlockID: nb.ID})
		return true, nil
	case KeyBackspace:
		r, err := loadRegion(b)
		if err != nil {
			return false, err
		}
		if !r.IsEmpty() {
			return false, nil
		}
		s.emitter.Emit(ctx, EventDeleteRequested, DeleteRequested{BlockID: s.id})
		s.doc.RemoveBlock(s.id)
		return true, nil
	}
	return false, nil
}

// MouseUp shows the formatting toolbar above a non-empty selection and
// hides it when the selection collapses.
func (s *TextSurface) MouseUp(ctx context.Context, sel richtext.Selection, rect Rect) (*ToolbarShown, error) {
	if !s.doc.Has(s.id) {
		return nil, fmt.Errorf("mouseup %s: %w", s.id, ErrBlockNotFound)
	}
	if sel.Collapsed() {
		s.emitter.Emit(ctx, EventToolbarHidden, ToolbarHidden{BlockID: s.id})
		return nil, nil
	}
	ev := &ToolbarShown{BlockID: s.id, Position: ToolbarPosition(rect), Selection: sel}
	s.emitter.Emit(ctx, EventToolbarShown, *ev)
	return ev, nil
}

// ToolbarPosition centers the toolbar horizontally over rect and places it
// above it.
func ToolbarPosition(rect Rect) Point {
	return Point{
		X: rect.Left + rect.Width/2,
		Y: rect.Top - ToolbarHeight - ToolbarGap,
	}
}

// Format applies a formatting command over sel. Formatting that cannot be
// applied is skipped silently and reported as applied=false; only an unknown
// command or a missing block is an error.
func (s *TextSurface) Format(ctx context.Context, cmd richtext.Command, value string, sel richtext.Selection) (applied bool, err error) {
	_, err = s.commit(ctx, func(b domain.Block) (*richtext.Region, error) {
		r, err := loadRegion(b)
		if err != nil {
			return nil, err
		}
		if err := r.Apply(cmd, value, sel); err != nil {
			return nil, err
		}
		return r, nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrBlockNotFound), errors.Is(err, richtext.ErrUnknownCommand):
		return false, err
	}
	s.logger.Debug("formatting skipped", zap.String("block", s.id), zap.String("cmd", string(cmd)), zap.Error(err))
	return false, nil
}

// Content returns the block's current plain text and markup.
func (s *TextSurface) Content() (text, markup string, err error) {
	b, ok := s.doc.Block(s.id)
	if !ok {
		return "", "", fmt.Errorf("content %s: %w", s.id, ErrBlockNotFound)
	}
	r, err := loadRegion(b)
	if err != nil {
		return "", "", err
	}
	return r.Text(), r.HTML(), nil
}

// commit derives the new region from the current block under the document
// lock, writes it back and emits the new content. It always emits, even when
// nothing changed.
func (s *TextSurface) commit(ctx context.Context, derive func(b domain.Block) (*richtext.Region, error)) (domain.BlockType, error) {
	var (
		typ    domain.BlockType
		change ContentChanged
	)
	err := s.doc.Edit(s.id, func(b *domain.Block) error {
		r, err := derive(*b)
		if err != nil {
			return err
		}
		data, err := textPayload(*b, r)
		if err != nil {
			return fmt.Errorf("update %s: %w", b.ID, err)
		}
		b.Data = data
		typ = b.Type
		change = ContentChanged{BlockID: b.ID, Text: r.Text(), HTML: r.HTML()}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.emitter.Emit(ctx, EventContentChanged, change)
	return typ, nil
}

// ── Helpers ────────────────────────────────────────────────

// loadRegion parses a text block's authoritative content: its html when
// present, otherwise the legacy text fallback.
func loadRegion(b domain.Block) (*richtext.Region, error) {
	switch b.Type {
	case domain.BlockTypeHeading:
		d, err := domain.DecodeData[domain.HeadingData](b)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", b.ID, err)
		}
		if d.HTML != "" {
			return parseSanitized(d.HTML)
		}
		return richtext.ParseRegion(html.EscapeString(d.Text))
	case domain.BlockTypeParagraph:
		d, err := domain.DecodeData[domain.ParagraphData](b)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", b.ID, err)
		}
		if d.HTML != "" {
			return parseSanitized(d.HTML)
		}
		return richtext.RegionFromSpans(d.Text), nil
	}
	return nil, fmt.Errorf("load %s: %w", b.ID, ErrWrongSurface)
}

func parseSanitized(markup string) (*richtext.Region, error) {
	r, err := richtext.ParseRegion(markup)
	if err != nil {
		return nil, err
	}
	r.Sanitize()
	return r, nil
}

// textPayload encodes the region as the block's data, keeping any keys the
// block carried that this version does not know.
func textPayload(b domain.Block, r *richtext.Region) (json.RawMessage, error) {
	switch b.Type {
	case domain.BlockTypeHeading:
		return domain.MergePayload(b.Data, domain.HeadingData{Text: r.Text(), HTML: r.HTML()})
	case domain.BlockTypeParagraph:
		return domain.MergePayload(b.Data, domain.ParagraphData{Text: r.Spans(), HTML: r.HTML()})
	}
	return nil, ErrWrongSurface
}
