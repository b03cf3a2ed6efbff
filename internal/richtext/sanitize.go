package richtext

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Iframe: true, atom.Object: true,
	atom.Embed: true, atom.Link: true, atom.Meta: true, atom.Form: true,
	atom.Input: true, atom.Button: true, atom.Textarea: true, atom.Select: true,
	atom.Template: true,
}

// Sanitize strips active content from text-block markup: scripting and
// embedding elements, event-handler attributes and URLs with a scheme
// other than http, https or mailto. The
// output is normalized, so sanitizing twice yields the same string.
func Sanitize(markup string) string {
	r, err := ParseRegion(markup)
	if err != nil {
		return ""
	}
	r.Sanitize()
	return r.HTML()
}

// Sanitize applies the same rules as the package-level Sanitize in place.
func (r *Region) Sanitize() {
	sanitizeNode(r.root)
	normalize(r.root)
}

func sanitizeNode(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.ElementNode:
			if blockedElements[c.DataAtom] {
				n.RemoveChild(c)
				break
			}
			c.Attr = safeAttrs(c.Attr)
			sanitizeNode(c)
		}
		c = next
	}
}

func safeAttrs(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		switch key {
		case "href":
			if !SafeURL(a.Val, "http", "https", "mailto") {
				continue
			}
		case "src", "action", "formaction":
			if !SafeURL(a.Val) {
				continue
			}
		}
		if key == "style" && !validStyle(a.Val) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func validStyle(s string) bool {
	for _, d := range parseStyle(s) {
		if !validCSSValue(d.value) {
			return false
		}
	}
	return true
}

// SafeURL reports whether v is relative or uses one of schemes, which
// default to http and https. ASCII whitespace and control characters are
// dropped first, as browsers ignore them when reading a scheme.
func SafeURL(v string, schemes ...string) bool {
	v = strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, v)
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return true
	}
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}
