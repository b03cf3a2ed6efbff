// Package render turns a persisted block list into display markup.
package render

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"postcms/internal/blocks"
	"postcms/internal/domain"
	"postcms/internal/logging"
)

// Renderer is the read-only renderer. It never mutates its input and skips
// blocks it cannot render instead of failing the whole document.
type Renderer struct {
	registry *blocks.Registry
	logger   *zap.Logger
}

// New creates a renderer over registry. A nil registry means blocks.Builtin.
func New(registry *blocks.Registry, logger *zap.Logger) *Renderer {
	if registry == nil {
		registry = blocks.Builtin()
	}
	return &Renderer{registry: registry, logger: logging.OrNop(logger).Named("render")}
}

// Block renders one block. Unknown types and undecodable payloads render as "".
func (r *Renderer) Block(b domain.Block) string {
	k, ok := r.registry.Lookup(b.Type)
	if !ok {
		r.logger.Debug("skipping unknown block type", zap.String("block", b.ID), zap.String("type", string(b.Type)))
		return ""
	}
	out, err := r.safeDisplay(k, b)
	if err != nil {
		r.logger.Warn("skipping unrenderable block", zap.String("block", b.ID), zap.Error(err))
		return ""
	}
	return out
}

func (r *Renderer) safeDisplay(k blocks.Kind, b domain.Block) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = "", fmt.Errorf("display %s: panic: %v", b.Type, p)
		}
	}()
	return k.Display(b.Clone())
}

// HTML renders every block, one per line, in document order.
func (r *Renderer) HTML(list []domain.Block) string {
	var sb strings.Builder
	_ = r.Write(&sb, list)
	return sb.String()
}

// Write streams the rendered blocks to w.
func (r *Renderer) Write(w io.Writer, list []domain.Block) error {
	for _, b := range list {
		out := r.Block(b)
		if out == "" {
			continue
		}
		if _, err := io.WriteString(w, out+"\n"); err != nil {
			return fmt.Errorf("write block %s: %w", b.ID, err)
		}
	}
	return nil
}

// HTML renders with the builtin registry.
func HTML(list []domain.Block) string {
	return New(nil, nil).HTML(list)
}
