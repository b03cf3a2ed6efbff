// Package blocks is the single table of block types. Each type is registered
// once with its defaults, its editing surface and its display rule; creation,
// editing and read-only rendering all dispatch through it.
package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"postcms/internal/domain"
)

// ErrUnknownBlockType is returned when a type has no registration.
var ErrUnknownBlockType = errors.New("unknown block type")

// Surface is the kind of editing surface a block type uses.
type Surface int

const (
	SurfaceText Surface = iota
	SurfaceMedia
)

func (s Surface) String() string {
	switch s {
	case SurfaceText:
		return "text"
	case SurfaceMedia:
		return "media"
	}
	return fmt.Sprintf("surface(%d)", int(s))
}

// Kind describes one block type.
type Kind struct {
	Type    domain.BlockType
	Label   string
	Surface Surface
	// Accept is the MIME type prefix a media surface takes for uploads.
	Accept string
	// Defaults returns fresh data and style payloads for a new block.
	Defaults func() (data, style json.RawMessage)
	// Display renders a block as read-only markup.
	Display func(b domain.Block) (string, error)
}

// Registry maps block types to their Kind.
type Registry struct {
	mu    sync.RWMutex
	kinds map[domain.BlockType]Kind
	order []domain.BlockType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[domain.BlockType]Kind)}
}

// Register adds a kind. Panics on duplicate or incomplete registration.
func (r *Registry) Register(k Kind) {
	if k.Type == "" || k.Defaults == nil || k.Display == nil {
		panic(fmt.Sprintf("block registry: incomplete registration for %q", k.Type))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[k.Type]; exists {
		panic(fmt.Sprintf("block registry: duplicate registration for block type %q", k.Type))
	}
	r.kinds[k.Type] = k
	r.order = append(r.order, k.Type)
}

// Lookup returns the kind registered for t.
func (r *Registry) Lookup(t domain.BlockType) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[t]
	return k, ok
}

// Types lists registered types in registration order.
func (r *Registry) Types() []domain.BlockType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.BlockType(nil), r.order...)
}

// New builds a block of type t with default payloads and a fresh id.
func (r *Registry) New(t domain.BlockType) (domain.Block, error) {
	k, ok := r.Lookup(t)
	if !ok {
		return domain.Block{}, fmt.Errorf("%w: %q", ErrUnknownBlockType, t)
	}
	data, style := k.Defaults()
	return domain.Block{ID: uuid.NewString(), Type: t, Data: data, Style: style}, nil
}

var (
	builtinOnce sync.Once
	builtin     *Registry
)

// Builtin returns the shared registry holding heading, paragraph, image and
// video.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		builtin = NewRegistry()
		builtin.Register(Heading)
		builtin.Register(Paragraph)
		builtin.Register(Image)
		builtin.Register(Video)
	})
	return builtin
}
