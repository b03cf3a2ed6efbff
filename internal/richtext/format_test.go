package richtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcms/internal/domain"
)

func apply(t *testing.T, markup string, cmd Command, value string, sel Selection) (string, error) {
	t.Helper()
	r, err := ParseRegion(markup)
	require.NoError(t, err)
	err = r.Apply(cmd, value, sel)
	return r.HTML(), err
}

func TestApply_BoldToggle(t *testing.T) {
	out, err := apply(t, "Hello world", CmdBold, "", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, "<b>Hello</b> world", out)

	out, err = apply(t, out, CmdBold, "", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
}

func TestApply_BoldRemovesFromPartOfElement(t *testing.T) {
	out, err := apply(t, "<b>Hello world</b>", CmdBold, "", Selection{6, 11})
	require.NoError(t, err)
	assert.Equal(t, "<b>Hello </b>world", out)
}

func TestApply_StrongCountsAsBold(t *testing.T) {
	out, err := apply(t, "<strong>Hi</strong>", CmdBold, "", Selection{0, 2})
	require.NoError(t, err)
	assert.Equal(t, "Hi", out)
}

func TestApply_MixedSelectionAddsFormat(t *testing.T) {
	// Only part of the selection is bold, so bold is added, not removed.
	out, err := apply(t, "<b>Hel</b>lo", CmdBold, "", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, "<b>Hello</b>", out)
}

func TestApply_ItalicAcrossElementBoundary(t *testing.T) {
	out, err := apply(t, "<b>Hello</b> world", CmdItalic, "", Selection{3, 8})
	require.NoError(t, err)
	assert.Equal(t, "<b>Hel<i>lo</i></b><i> wo</i>rld", out)
}

func TestApply_Underline(t *testing.T) {
	out, err := apply(t, "abc", CmdUnderline, "", Selection{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "a<u>b</u>c", out)
}

func TestApply_ColorWrapsThenUpdatesInPlace(t *testing.T) {
	out, err := apply(t, "Hello", CmdColor, "#ff0000", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, `<span style="color: #ff0000">Hello</span>`, out)

	out, err = apply(t, out, CmdColor, "#00ff00", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, `<span style="color: #00ff00">Hello</span>`, out)
}

func TestApply_FontFamily(t *testing.T) {
	out, err := apply(t, "Hello", CmdFontFamily, "'Open Sans', sans-serif", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, `<span style="font-family: &#39;Open Sans&#39;, sans-serif">Hello</span>`, out)
}

func TestApply_FontSizeSingleNode(t *testing.T) {
	out, err := apply(t, "Hello world", CmdFontSize, "18px", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, `<span style="font-size: 18px">Hello</span> world`, out)
}

func TestApply_FontSizeWrapsFullyContainedElements(t *testing.T) {
	out, err := apply(t, "a<i>b</i>c", CmdFontSize, "20px", Selection{0, 3})
	require.NoError(t, err)
	assert.Equal(t, `<span style="font-size: 20px">a<i>b</i>c</span>`, out)
}

func TestApply_FontSizeAcrossPartialElementIsNoop(t *testing.T) {
	const in = "<b>Hello</b> world"
	out, err := apply(t, in, CmdFontSize, "18px", Selection{3, 8})
	assert.ErrorIs(t, err, ErrUnwrappable)
	assert.Equal(t, in, out)
}

func TestApply_ClearIsIdempotent(t *testing.T) {
	const in = `<b><i>Hello</i> world</b> <span style="color: red">!</span>`
	once, err := apply(t, in, CmdClear, "", Selection{0, 13})
	require.NoError(t, err)
	assert.Equal(t, "Hello world !", once)

	twice, err := apply(t, once, CmdClear, "", Selection{0, 13})
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestApply_ClearPartialSelection(t *testing.T) {
	once, err := apply(t, "<b>Hello world</b>", CmdClear, "", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, "Hello<b> world</b>", once)

	twice, err := apply(t, once, CmdClear, "", Selection{0, 5})
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestApply_CollapsedSelectionIsNoop(t *testing.T) {
	out, err := apply(t, "<b>Hi</b>", CmdItalic, "", Selection{1, 1})
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, "<b>Hi</b>", out)
}

func TestApply_SelectionIsClampedAndOrdered(t *testing.T) {
	out, err := apply(t, "abc", CmdBold, "", Selection{10, 1})
	require.NoError(t, err)
	assert.Equal(t, "a<b>bc</b>", out)
}

func TestApply_RejectsStyleInjection(t *testing.T) {
	out, err := apply(t, "Hello", CmdColor, `red; background: url(x)`, Selection{0, 5})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, "Hello", out)
}

func TestApply_MultibyteOffsets(t *testing.T) {
	out, err := apply(t, "héllo", CmdBold, "", Selection{0, 2})
	require.NoError(t, err)
	assert.Equal(t, "<b>hé</b>llo", out)
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand("fontSize")
	require.NoError(t, err)
	assert.Equal(t, CmdFontSize, c)

	_, err = ParseCommand("strikethrough")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestRegion_TrimTrailing(t *testing.T) {
	r := MustParseRegion("<b>Hello/</b>")
	assert.True(t, r.TrimTrailing("/"))
	assert.Equal(t, "<b>Hello</b>", r.HTML())
	assert.Equal(t, "Hello", r.Text())

	r = MustParseRegion("/")
	assert.True(t, r.TrimTrailing("/"))
	assert.Equal(t, "", r.HTML())

	r = MustParseRegion("no slash")
	assert.False(t, r.TrimTrailing("/"))
}

func TestRegion_IsEmpty(t *testing.T) {
	assert.True(t, MustParseRegion("").IsEmpty())
	assert.True(t, MustParseRegion("<br>").IsEmpty())
	assert.True(t, MustParseRegion("\n").IsEmpty())
	assert.False(t, MustParseRegion("x").IsEmpty())
}

func TestRegion_EscapesText(t *testing.T) {
	r := MustParseRegion("Tom &amp; Jerry")
	assert.Equal(t, "Tom & Jerry", r.Text())
	assert.Equal(t, "Tom &amp; Jerry", r.HTML())
}

func TestRegion_Spans(t *testing.T) {
	r := MustParseRegion(`<b>Hel</b>lo <span style="color: red">x</span>`)
	assert.Equal(t, domain.Spans{
		{Text: "Hel", Bold: true},
		{Text: "lo "},
		{Text: "x", Color: "red"},
	}, r.Spans())
}

func TestFromSpans(t *testing.T) {
	got := FromSpans(domain.Spans{
		{Text: "a<b", Bold: true, Italic: true},
		{Text: " c", Underline: true, Color: "#333"},
	})
	assert.Equal(t, `<b><i>a&lt;b</i></b><u><span style="color: #333"> c</span></u>`, got)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Hi", Sanitize(`Hi<script>alert(1)</script>`))
	assert.Equal(t, "<b>x</b>", Sanitize(`<b onclick="steal()">x</b>`))
	assert.Equal(t, "<a>x</a>", Sanitize(`<a href="javascript:alert(1)">x</a>`))
	assert.Equal(t, `<a href="https://example.com">x</a>`, Sanitize(`<a href="https://example.com">x</a>`))

	assert.Equal(t, "<a>x</a>", Sanitize(`<a href="java&#9;script:alert(1)">x</a>`))
	assert.Equal(t, "<a>x</a>", Sanitize(`<a href="&#1;javascript:alert(1)">x</a>`))
	assert.Equal(t, "<a>x</a>", Sanitize(`<a href="JaVaScRiPt:alert(1)">x</a>`))
	assert.Equal(t, "<a>x</a>", Sanitize(`<a href="data:text/html,hi">x</a>`))
	assert.Equal(t, `<a href="mailto:help@advisor.example">x</a>`, Sanitize(`<a href="mailto:help@advisor.example">x</a>`))
	assert.Equal(t, `<a href="/guides/term-life">x</a>`, Sanitize(`<a href="/guides/term-life">x</a>`))

	once := Sanitize(`<i>a</i><!-- c --><style>p{}</style><u>b</u>`)
	assert.Equal(t, "<i>a</i><u>b</u>", once)
	assert.Equal(t, once, Sanitize(once))
}

func TestSafeURL(t *testing.T) {
	assert.True(t, SafeURL("https://cdn.example/a.png"))
	assert.True(t, SafeURL("/media/a.png"))
	assert.True(t, SafeURL(""))
	assert.False(t, SafeURL("javascript:alert(1)"))
	assert.False(t, SafeURL("java\tscript:alert(1)"))
	assert.False(t, SafeURL("\x01javascript:alert(1)"))
	assert.False(t, SafeURL(" vbscript:msgbox(1)"))
	assert.False(t, SafeURL("mailto:a@b.example"))
	assert.True(t, SafeURL("mailto:a@b.example", "mailto"))
}
