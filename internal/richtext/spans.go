package richtext

import (
	"html"
	"strings"

	"golang.org/x/net/html/atom"

	"postcms/internal/domain"
)

// Spans derives the legacy span form of the region: one span per run of
// text with identical bold/italic/underline/color state.
func (r *Region) Spans() domain.Spans {
	out := domain.Spans{}
	for _, t := range textNodes(r.root) {
		if t.Data == "" {
			continue
		}
		sp := domain.Span{Text: t.Data}
		for p := t.Parent; p != nil && p != r.root; p = p.Parent {
			switch p.DataAtom {
			case atom.B, atom.Strong:
				sp.Bold = true
			case atom.I, atom.Em:
				sp.Italic = true
			case atom.U:
				sp.Underline = true
			}
			if w := styleProp(p, "font-weight"); w == "bold" || w == "700" {
				sp.Bold = true
			}
			if sp.Color == "" {
				if c := styleProp(p, "color"); c != "" {
					sp.Color = c
				} else if p.DataAtom == atom.Font {
					sp.Color = getAttr(p, "color")
				}
			}
		}
		if n := len(out); n > 0 && sameFormatting(out[n-1], sp) {
			out[n-1].Text += sp.Text
			continue
		}
		out = append(out, sp)
	}
	return out
}

func sameFormatting(a, b domain.Span) bool {
	return a.Bold == b.Bold && a.Italic == b.Italic && a.Underline == b.Underline && a.Color == b.Color
}

// FromSpans renders legacy span content as markup.
func FromSpans(spans domain.Spans) string {
	var sb strings.Builder
	for _, sp := range spans {
		text := html.EscapeString(sp.Text)
		if sp.Color != "" && validCSSValue(sp.Color) {
			text = `<span style="color: ` + html.EscapeString(sp.Color) + `">` + text + `</span>`
		}
		if sp.Underline {
			text = "<u>" + text + "</u>"
		}
		if sp.Italic {
			text = "<i>" + text + "</i>"
		}
		if sp.Bold {
			text = "<b>" + text + "</b>"
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// RegionFromSpans builds a region from legacy span content.
func RegionFromSpans(spans domain.Spans) *Region {
	r, err := ParseRegion(FromSpans(spans))
	if err != nil {
		return &Region{root: newElement(atom.Div)}
	}
	return r
}
