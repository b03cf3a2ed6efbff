package blocks

import (
	"encoding/json"
	"html"
	"strconv"
	"strings"

	"postcms/internal/domain"
	"postcms/internal/richtext"
)

// ── Defaults ───────────────────────────────────────────────

var (
	DefaultHeadingStyle   = domain.HeadingStyle{Level: 2, Color: "#111827", FontFamily: "inherit"}
	DefaultParagraphStyle = domain.ParagraphStyle{FontSize: "16px", LineHeight: "1.7", Color: "#374151", FontFamily: "inherit"}
	DefaultMediaStyle     = domain.MediaStyle{Width: "100%", BorderRadius: "8px"}
)

// ── Kinds ──────────────────────────────────────────────────

var Heading = Kind{
	Type:    domain.BlockTypeHeading,
	Label:   "Heading",
	Surface: SurfaceText,
	Defaults: func() (json.RawMessage, json.RawMessage) {
		return domain.MustEncode(domain.HeadingData{}), domain.MustEncode(DefaultHeadingStyle)
	},
	Display: displayHeading,
}

var Paragraph = Kind{
	Type:    domain.BlockTypeParagraph,
	Label:   "Paragraph",
	Surface: SurfaceText,
	Defaults: func() (json.RawMessage, json.RawMessage) {
		return domain.MustEncode(domain.ParagraphData{Text: domain.Spans{}}), domain.MustEncode(DefaultParagraphStyle)
	},
	Display: displayParagraph,
}

var Image = Kind{
	Type:    domain.BlockTypeImage,
	Label:   "Image",
	Surface: SurfaceMedia,
	Accept:  "image/",
	Defaults: func() (json.RawMessage, json.RawMessage) {
		return domain.MustEncode(domain.ImageData{}), domain.MustEncode(DefaultMediaStyle)
	},
	Display: displayImage,
}

var Video = Kind{
	Type:    domain.BlockTypeVideo,
	Label:   "Video",
	Surface: SurfaceMedia,
	Accept:  "video/",
	Defaults: func() (json.RawMessage, json.RawMessage) {
		return domain.MustEncode(domain.VideoData{}), domain.MustEncode(DefaultMediaStyle)
	},
	Display: displayVideo,
}

// ── Display rules ──────────────────────────────────────────

func displayHeading(b domain.Block) (string, error) {
	data, err := domain.DecodeData[domain.HeadingData](b)
	if err != nil {
		return "", err
	}
	style, err := domain.DecodeStyle[domain.HeadingStyle](b)
	if err != nil {
		return "", err
	}
	body := html.EscapeString(data.Text)
	if data.HTML != "" {
		body = richtext.Sanitize(data.HTML)
	}
	tag := "h" + strconv.Itoa(style.ClampedLevel())
	return "<" + tag + styleAttr("color", style.Color, "font-family", style.FontFamily) + ">" + body + "</" + tag + ">", nil
}

func displayParagraph(b domain.Block) (string, error) {
	data, err := domain.DecodeData[domain.ParagraphData](b)
	if err != nil {
		return "", err
	}
	style, err := domain.DecodeStyle[domain.ParagraphStyle](b)
	if err != nil {
		return "", err
	}
	body := richtext.FromSpans(data.Text)
	if data.HTML != "" {
		body = richtext.Sanitize(data.HTML)
	}
	attr := styleAttr(
		"font-size", style.FontSize,
		"line-height", style.LineHeight,
		"color", style.Color,
		"font-family", style.FontFamily,
	)
	return "<p" + attr + ">" + body + "</p>", nil
}

func displayImage(b domain.Block) (string, error) {
	data, err := domain.DecodeData[domain.ImageData](b)
	if err != nil {
		return "", err
	}
	if data.URL == "" || !richtext.SafeURL(data.URL) {
		return "", nil
	}
	style, err := domain.DecodeStyle[domain.MediaStyle](b)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(`<figure><img src="` + html.EscapeString(data.URL) + `" alt="` + html.EscapeString(data.Caption) + `"`)
	sb.WriteString(styleAttr("width", style.Width, "border-radius", style.BorderRadius))
	sb.WriteString(">")
	writeCaption(&sb, data.Caption)
	sb.WriteString("</figure>")
	return sb.String(), nil
}

func displayVideo(b domain.Block) (string, error) {
	data, err := domain.DecodeData[domain.VideoData](b)
	if err != nil {
		return "", err
	}
	if data.URL == "" || !richtext.SafeURL(data.URL) {
		return "", nil
	}
	style, err := domain.DecodeStyle[domain.MediaStyle](b)
	if err != nil {
		return "", err
	}
	src := html.EscapeString(data.URL)
	attr := styleAttr("width", style.Width, "border-radius", style.BorderRadius)
	var sb strings.Builder
	sb.WriteString("<figure>")
	if data.IsEmbed {
		sb.WriteString(`<iframe src="` + src + `"` + attr + ` frameborder="0" allow="autoplay; encrypted-media; picture-in-picture" allowfullscreen></iframe>`)
	} else {
		sb.WriteString(`<video src="` + src + `"` + attr + ` controls></video>`)
	}
	writeCaption(&sb, data.Caption)
	sb.WriteString("</figure>")
	return sb.String(), nil
}

// ── Helpers ────────────────────────────────────────────────

// styleAttr builds ` style="k:v;k:v"` from property/value pairs, skipping
// empty values. It returns "" when every value is empty.
func styleAttr(pairs ...string) string {
	var decls []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if v := strings.TrimSpace(pairs[i+1]); v != "" {
			decls = append(decls, pairs[i]+":"+v)
		}
	}
	if len(decls) == 0 {
		return ""
	}
	return ` style="` + html.EscapeString(strings.Join(decls, ";")) + `"`
}

func writeCaption(sb *strings.Builder, caption string) {
	if caption == "" {
		return
	}
	sb.WriteString("<figcaption>" + html.EscapeString(caption) + "</figcaption>")
}
