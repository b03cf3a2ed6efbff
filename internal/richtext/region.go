// Package richtext is the formatting engine for text blocks. An editable
// region is an HTML fragment held as an x/net/html node tree; formatting
// commands mutate that tree over an explicit character selection.
package richtext

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Region is the content of one editable text block.
type Region struct {
	root *html.Node
}

// ParseRegion parses markup as the body of a <div>.
func ParseRegion(markup string) (*Region, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), newElement(atom.Div))
	if err != nil {
		return nil, fmt.Errorf("parse region: %w", err)
	}
	root := newElement(atom.Div)
	for _, n := range nodes {
		root.AppendChild(n)
	}
	normalize(root)
	return &Region{root: root}, nil
}

// MustParseRegion is ParseRegion for markup known to be well formed.
func MustParseRegion(markup string) *Region {
	r, err := ParseRegion(markup)
	if err != nil {
		panic(err)
	}
	return r
}

// HTML serializes the region's children.
func (r *Region) HTML() string {
	var buf bytes.Buffer
	for c := r.root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// Text returns the concatenated text content of the region.
func (r *Region) Text() string {
	var sb strings.Builder
	for _, t := range textNodes(r.root) {
		sb.WriteString(t.Data)
	}
	return sb.String()
}

// Len is the length of Text in runes.
func (r *Region) Len() int {
	return utf8.RuneCountInString(r.Text())
}

// IsEmpty reports whether the region has no text, ignoring one trailing newline.
func (r *Region) IsEmpty() bool {
	return strings.TrimSuffix(r.Text(), "\n") == ""
}

// TrimTrailing removes suffix from the end of the last non-empty text node.
// It reports whether anything was removed.
func (r *Region) TrimTrailing(suffix string) bool {
	nodes := textNodes(r.root)
	for i := len(nodes) - 1; i >= 0; i-- {
		t := nodes[i]
		if t.Data == "" {
			continue
		}
		if !strings.HasSuffix(t.Data, suffix) {
			return false
		}
		t.Data = strings.TrimSuffix(t.Data, suffix)
		normalize(r.root)
		return true
	}
	return false
}

// ── tree helpers ───────────────────────────────────────────

func newElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
}

func textNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func shallowClone(n *html.Node) *html.Node {
	return &html.Node{
		Type:      n.Type,
		Data:      n.Data,
		DataAtom:  n.DataAtom,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
}

func cloneTree(n *html.Node) *html.Node {
	out := shallowClone(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out.AppendChild(cloneTree(c))
	}
	return out
}

// splitText cuts t at a rune offset and returns the new right-hand node,
// which is inserted directly after t.
func splitText(t *html.Node, offset int) *html.Node {
	b := 0
	for i := 0; i < offset && b < len(t.Data); i++ {
		_, size := utf8.DecodeRuneInString(t.Data[b:])
		b += size
	}
	right := &html.Node{Type: html.TextNode, Data: t.Data[b:]}
	t.Data = t.Data[:b]
	t.Parent.InsertBefore(right, t.NextSibling)
	return right
}

// isolateRange splits text nodes at the selection boundaries and returns the
// text nodes lying entirely inside [start, end), in document order.
func isolateRange(root *html.Node, start, end int) []*html.Node {
	var out []*html.Node
	pos := 0
	for _, t := range textNodes(root) {
		n := utf8.RuneCountInString(t.Data)
		tStart, tEnd := pos, pos+n
		pos = tEnd
		if n == 0 || tEnd <= start || tStart >= end {
			continue
		}
		node := t
		if start > tStart {
			node = splitText(node, start-tStart)
			tStart = start
		}
		if end < tEnd {
			splitText(node, end-tStart)
		}
		out = append(out, node)
	}
	return out
}

func wrap(n, w *html.Node) {
	p := n.Parent
	p.InsertBefore(w, n)
	p.RemoveChild(n)
	w.AppendChild(n)
}

func unwrap(e *html.Node) {
	p := e.Parent
	for e.FirstChild != nil {
		c := e.FirstChild
		e.RemoveChild(c)
		p.InsertBefore(c, e)
	}
	p.RemoveChild(e)
}

// isolate splits every element from n's parent up to and including anc so
// that anc ends up containing only the path down to n. Siblings on either
// side move into shallow copies placed around the split element.
func isolate(n, anc *html.Node) {
	cur := n
	for cur != anc {
		p := cur.Parent
		if cur.PrevSibling != nil {
			left := shallowClone(p)
			for c := p.FirstChild; c != cur; {
				next := c.NextSibling
				p.RemoveChild(c)
				left.AppendChild(c)
				c = next
			}
			p.Parent.InsertBefore(left, p)
		}
		if cur.NextSibling != nil {
			right := shallowClone(p)
			for c := cur.NextSibling; c != nil; {
				next := c.NextSibling
				p.RemoveChild(c)
				right.AppendChild(c)
				c = next
			}
			p.Parent.InsertBefore(right, p.NextSibling)
		}
		cur = p
	}
}

func closestAncestor(n, root *html.Node, match func(*html.Node) bool) *html.Node {
	for p := n.Parent; p != nil && p != root; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}

// liftOut moves n out of every ancestor (below root) that match accepts.
func liftOut(n, root *html.Node, match func(*html.Node) bool) {
	for {
		a := closestAncestor(n, root, match)
		if a == nil {
			return
		}
		isolate(n, a)
		unwrap(a)
	}
}

var inlineFormatting = map[atom.Atom]bool{
	atom.B: true, atom.Strong: true, atom.I: true, atom.Em: true, atom.U: true,
	atom.S: true, atom.Strike: true, atom.Span: true, atom.Font: true,
	atom.Sub: true, atom.Sup: true, atom.Mark: true, atom.Small: true, atom.Big: true,
}

func isInlineFormatting(n *html.Node) bool {
	return n.Type == html.ElementNode && inlineFormatting[n.DataAtom]
}

func sameElement(a, b *html.Node) bool {
	if a.Type != html.ElementNode || b.Type != html.ElementNode || a.Data != b.Data || len(a.Attr) != len(b.Attr) {
		return false
	}
	for i := range a.Attr {
		if a.Attr[i] != b.Attr[i] {
			return false
		}
	}
	return true
}

// normalize merges adjacent text nodes, drops empty text nodes and empty
// formatting elements, and merges identical adjacent formatting elements.
// Serialized output of a normalized tree is canonical for its content.
func normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.TextNode && c.Data == "":
			n.RemoveChild(c)
		case c.Type == html.TextNode && c.PrevSibling != nil && c.PrevSibling.Type == html.TextNode:
			c.PrevSibling.Data += c.Data
			n.RemoveChild(c)
		case c.Type == html.ElementNode:
			normalize(c)
			if isInlineFormatting(c) && c.FirstChild == nil {
				n.RemoveChild(c)
				break
			}
			if prev := c.PrevSibling; prev != nil && isInlineFormatting(c) && sameElement(prev, c) {
				for c.FirstChild != nil {
					x := c.FirstChild
					c.RemoveChild(x)
					prev.AppendChild(x)
				}
				n.RemoveChild(c)
				normalize(prev)
			}
		}
		c = next
	}
}

// ── inline style attribute ─────────────────────────────────

type styleDecl struct {
	prop, value string
}

func parseStyle(s string) []styleDecl {
	var out []styleDecl
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" || value == "" {
			continue
		}
		out = append(out, styleDecl{prop: prop, value: value})
	}
	return out
}

func formatStyle(decls []styleDecl) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.prop + ": " + d.value
	}
	return strings.Join(parts, "; ")
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func styleProp(n *html.Node, prop string) string {
	for _, d := range parseStyle(getAttr(n, "style")) {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

func setStyleProp(n *html.Node, prop, value string) {
	decls := parseStyle(getAttr(n, "style"))
	found := false
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].value = value
			found = true
		}
	}
	if !found {
		decls = append(decls, styleDecl{prop: prop, value: value})
	}
	setAttr(n, "style", formatStyle(decls))
}
