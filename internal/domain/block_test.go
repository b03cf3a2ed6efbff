package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcms/internal/domain"
)

func TestSpans_LegacyStringDecodesAsSingleSpan(t *testing.T) {
	var d domain.ParagraphData
	require.NoError(t, json.Unmarshal([]byte(`{"text":"plain old text","html":""}`), &d))
	assert.Equal(t, domain.Spans{{Text: "plain old text"}}, d.Text)

	require.NoError(t, json.Unmarshal([]byte(`{"text":"","html":""}`), &d))
	assert.Empty(t, d.Text)
}

func TestSpans_ArrayAndNil(t *testing.T) {
	var d domain.ParagraphData
	require.NoError(t, json.Unmarshal([]byte(`{"text":[{"text":"a","bold":true},{"text":"b"}]}`), &d))
	assert.Equal(t, "ab", d.Text.PlainText())
	assert.True(t, d.Text[0].Bold)

	out, err := json.Marshal(domain.ParagraphData{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":[],"html":""}`, string(out))
}

func TestMergePayload_KeepsUnknownKeys(t *testing.T) {
	prev := json.RawMessage(`{"url":"old","caption":"c","credit":"Jane"}`)
	got, err := domain.MergePayload(prev, domain.ImageData{URL: "new", Caption: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"new","caption":"c","credit":"Jane"}`, string(got))
}

func TestMergePayload_NonObjectPrevIsReplaced(t *testing.T) {
	got, err := domain.MergePayload(json.RawMessage(`"junk"`), domain.ImageData{URL: "u"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"u","caption":""}`, string(got))
}

func TestDecodeData_EmptyPayloadIsZero(t *testing.T) {
	v, err := domain.DecodeData[domain.VideoData](domain.Block{Type: domain.BlockTypeVideo})
	require.NoError(t, err)
	assert.Equal(t, domain.VideoData{}, v)
}

func TestHeadingStyle_ClampedLevel(t *testing.T) {
	assert.Equal(t, 1, domain.HeadingStyle{Level: 0}.ClampedLevel())
	assert.Equal(t, 2, domain.HeadingStyle{Level: 2}.ClampedLevel())
	assert.Equal(t, 3, domain.HeadingStyle{Level: 6}.ClampedLevel())
}

func TestValidateBlocks(t *testing.T) {
	assert.ErrorIs(t, domain.ValidateBlocks(nil), domain.ErrInvalidDocument)
	assert.ErrorIs(t, domain.ValidateBlocks([]domain.Block{{ID: ""}}), domain.ErrInvalidDocument)
	assert.ErrorIs(t, domain.ValidateBlocks([]domain.Block{{ID: "a"}, {ID: "a"}}), domain.ErrInvalidDocument)
	assert.NoError(t, domain.ValidateBlocks([]domain.Block{{ID: "a"}, {ID: "b"}}))
}

func TestBlock_CloneSharesNoMemory(t *testing.T) {
	b := domain.Block{ID: "x", Type: domain.BlockTypeImage, Data: json.RawMessage(`{"url":"a"}`)}
	c := b.Clone()
	c.Data[9] = 'z'
	assert.Equal(t, `{"url":"a"}`, string(b.Data))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "what-does-term-life-cover", domain.Slugify("  What does Term-Life cover?! "))
	assert.Equal(t, "", domain.Slugify("¿¡"))
}

func TestEncodeBlocks_KeepsMarkupUnescaped(t *testing.T) {
	out, err := domain.EncodeBlocks([]domain.Block{{
		ID:   "p1",
		Type: domain.BlockTypeParagraph,
		Data: json.RawMessage(`{"html":"<b>Tom & Jerry</b>"}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"p1","type":"paragraph","data":{"html":"<b>Tom & Jerry</b>"}}]`, out)

	empty, err := domain.EncodeBlocks(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestEncodeBlocks_KeepsPayloadShape(t *testing.T) {
	const stored = `[{"id":"a","type":"divider"},{"id":"b","type":"image","data":null}]`
	var blocks []domain.Block
	require.NoError(t, json.Unmarshal([]byte(stored), &blocks))

	out, err := domain.EncodeBlocks(blocks)
	require.NoError(t, err)
	assert.Equal(t, stored, out)
}
