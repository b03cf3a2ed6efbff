package editor

import "postcms/internal/richtext"

// Event names emitted by the editor.
const (
	EventContentChanged  = "block:content"
	EventSplitRequested  = "block:split"
	EventDeleteRequested = "block:delete"
	EventSlashTriggered  = "slash:triggered"
	EventToolbarShown    = "toolbar:show"
	EventToolbarHidden   = "toolbar:hide"
	EventPaletteOpened   = "palette:open"
	EventPaletteClosed   = "palette:close"
	EventUploadPending   = "upload:pending"
	EventUploadSucceeded = "upload:succeeded"
	EventUploadFailed    = "upload:failed"
	EventAlert           = "alert"
)

// Point is a position in viewport pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a bounding rectangle in viewport pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the visible area the floating menus must stay inside.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Key is a key press with its modifier state.
type Key struct {
	Name  string `json:"key"`
	Shift bool   `json:"shift,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

func (k Key) HasModifier() bool { return k.Shift || k.Ctrl || k.Alt || k.Meta }

const (
	KeyEnter     = "Enter"
	KeyBackspace = "Backspace"
	KeyEscape    = "Escape"
	KeyArrowUp   = "ArrowUp"
	KeyArrowDown = "ArrowDown"
)

// ── Payloads ───────────────────────────────────────────────

type ContentChanged struct {
	BlockID string `json:"blockId"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type SplitRequested struct {
	BlockID    string `json:"blockId"`
	NewBlockID string `json:"newBlockId"`
}

type DeleteRequested struct {
	BlockID string `json:"blockId"`
}

type SlashTriggered struct {
	BlockID string `json:"blockId"`
	Anchor  Point  `json:"anchor"`
}

type ToolbarShown struct {
	BlockID   string             `json:"blockId"`
	Position  Point              `json:"position"`
	Selection richtext.Selection `json:"selection"`
}

type ToolbarHidden struct {
	BlockID string `json:"blockId"`
}

type PaletteOpened struct {
	Owner    string `json:"owner"`
	Position Point  `json:"position"`
}

type UploadEvent struct {
	BlockID string `json:"blockId"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Alert struct {
	BlockID string `json:"blockId"`
	Message string `json:"message"`
}
