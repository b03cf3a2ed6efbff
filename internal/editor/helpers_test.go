package editor_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"postcms/internal/blocks"
	"postcms/internal/domain"
	"postcms/internal/editor"
	"postcms/internal/events"
)

func para(id, markup string) domain.Block {
	b, _ := blocks.Builtin().New(domain.BlockTypeParagraph)
	b.ID = id
	if markup != "" {
		b.Data = domain.MustEncode(map[string]any{"text": []any{}, "html": markup})
	}
	return b
}

func block(id string, t domain.BlockType) domain.Block {
	b, _ := blocks.Builtin().New(t)
	b.ID = id
	return b
}

func ids(list []domain.Block) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func newEditor(t *testing.T, initial []domain.Block, opts editor.Options) (*editor.Editor, *events.MockEmitter) {
	t.Helper()
	em := &events.MockEmitter{}
	opts.Emitter = em
	ed, err := editor.New(initial, opts)
	require.NoError(t, err)
	return ed, em
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
