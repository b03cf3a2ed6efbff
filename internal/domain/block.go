package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type BlockType string

const (
	BlockTypeHeading   BlockType = "heading"
	BlockTypeParagraph BlockType = "paragraph"
	BlockTypeImage     BlockType = "image"
	BlockTypeVideo     BlockType = "video"
)

// ErrInvalidDocument is returned when a block list breaks a document invariant.
var ErrInvalidDocument = errors.New("invalid document")

// Block is one unit of post content. Data and Style keep the type-specific
// payloads as raw JSON so fields this version does not know about survive
// a load/save cycle untouched.
type Block struct {
	ID    string          `json:"id"`
	Type  BlockType       `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Style json.RawMessage `json:"style,omitempty"`
}

// Clone returns a copy of b that shares no memory with it.
func (b Block) Clone() Block {
	return Block{
		ID:    b.ID,
		Type:  b.Type,
		Data:  bytes.Clone(b.Data),
		Style: bytes.Clone(b.Style),
	}
}

// IsText reports whether the block carries editable rich text.
func (b Block) IsText() bool {
	return b.Type == BlockTypeHeading || b.Type == BlockTypeParagraph
}

// ── Typed payloads ─────────────────────────────────────────

type HeadingData struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

type HeadingStyle struct {
	Level      int    `json:"level"`
	Color      string `json:"color,omitempty"`
	FontFamily string `json:"fontFamily,omitempty"`
}

// ClampedLevel returns Level forced into the 1–3 range.
func (s HeadingStyle) ClampedLevel() int {
	switch {
	case s.Level < 1:
		return 1
	case s.Level > 3:
		return 3
	}
	return s.Level
}

// Span is a run of paragraph text with uniform inline formatting.
type Span struct {
	Text      string `json:"text"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
	Color     string `json:"color,omitempty"`
}

// Spans is the legacy structured form of paragraph text. Very old posts
// stored a bare string, which decodes as a single unformatted span.
type Spans []Span

func (s *Spans) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*s = nil
		return nil
	case trimmed[0] == '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		if text == "" {
			*s = Spans{}
			return nil
		}
		*s = Spans{{Text: text}}
		return nil
	}
	var spans []Span
	if err := json.Unmarshal(trimmed, &spans); err != nil {
		return fmt.Errorf("decode spans: %w", err)
	}
	*s = spans
	return nil
}

func (s Spans) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Span(s))
}

// PlainText concatenates the text of every span.
func (s Spans) PlainText() string {
	var sb strings.Builder
	for _, sp := range s {
		sb.WriteString(sp.Text)
	}
	return sb.String()
}

type ParagraphData struct {
	Text Spans  `json:"text"`
	HTML string `json:"html"`
}

type ParagraphStyle struct {
	FontSize   string `json:"fontSize,omitempty"`
	LineHeight string `json:"lineHeight,omitempty"`
	Color      string `json:"color,omitempty"`
	FontFamily string `json:"fontFamily,omitempty"`
}

type ImageData struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

type VideoData struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
	IsEmbed bool   `json:"isEmbed"`
}

// MediaStyle is shared by image and video blocks.
type MediaStyle struct {
	Width        string `json:"width,omitempty"`
	BorderRadius string `json:"borderRadius,omitempty"`
}

// ── Encoding helpers ───────────────────────────────────────

// DecodeData decodes a block's data payload into T. An absent payload
// yields the zero value.
func DecodeData[T any](b Block) (T, error) {
	return decodeRaw[T](b.Data)
}

// DecodeStyle decodes a block's style payload into T.
func DecodeStyle[T any](b Block) (T, error) {
	return decodeRaw[T](b.Style)
}

func decodeRaw[T any](raw json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

// MustEncode marshals v, panicking on failure. Only used with the typed
// payload structs above, which always marshal.
func MustEncode(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("domain: encode payload: %v", err))
	}
	return data
}

// MergePayload overlays the JSON object encoding of v onto prev, keeping any
// keys in prev that v does not define. A prev that is not an object is
// replaced outright.
func MergePayload(prev json.RawMessage, v any) (json.RawMessage, error) {
	next, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var base map[string]json.RawMessage
	if len(bytes.TrimSpace(prev)) == 0 || json.Unmarshal(prev, &base) != nil || base == nil {
		return next, nil
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(next, &overlay); err != nil {
		return next, nil
	}
	for k, val := range overlay {
		base[k] = val
	}
	return json.Marshal(base)
}

// EncodeBlocks serializes a block list as compact JSON without HTML
// escaping, so stored payloads stay byte-identical to what was saved.
func EncodeBlocks(blocks []Block) (string, error) {
	if blocks == nil {
		blocks = []Block{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(blocks); err != nil {
		return "", fmt.Errorf("encode blocks: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ValidateBlocks checks the document invariants: at least one block and
// unique, non-empty ids.
func ValidateBlocks(blocks []Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: document has no blocks", ErrInvalidDocument)
	}
	seen := make(map[string]struct{}, len(blocks))
	for i, b := range blocks {
		if b.ID == "" {
			return fmt.Errorf("%w: block %d has no id", ErrInvalidDocument, i)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%w: duplicate block id %s", ErrInvalidDocument, b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return nil
}
