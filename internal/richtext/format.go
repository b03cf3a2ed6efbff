package richtext

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Command is a discrete inline formatting command.
type Command string

const (
	CmdBold       Command = "bold"
	CmdItalic     Command = "italic"
	CmdUnderline  Command = "underline"
	CmdColor      Command = "color"
	CmdFontFamily Command = "fontFamily"
	CmdFontSize   Command = "fontSize"
	CmdClear      Command = "clear"
)

var (
	ErrNoSelection    = errors.New("no selection")
	ErrUnknownCommand = errors.New("unknown formatting command")
	ErrInvalidValue   = errors.New("invalid formatting value")
	// ErrUnwrappable is the fontSize edge case: the selection starts and ends
	// under different parents, so no single element can wrap it.
	ErrUnwrappable = errors.New("selection cannot be wrapped in a single element")
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CmdBold, CmdItalic, CmdUnderline, CmdColor, CmdFontFamily, CmdFontSize, CmdClear:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// NeedsValue reports whether the command takes a value argument.
func (c Command) NeedsValue() bool {
	return c == CmdColor || c == CmdFontFamily || c == CmdFontSize
}

// Selection is a character range over Region.Text, in runes. End is exclusive.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Selection) Collapsed() bool { return s.Start == s.End }

func (s Selection) normalized() Selection {
	if s.Start > s.End {
		s.Start, s.End = s.End, s.Start
	}
	return s
}

var toggleTags = map[Command][]atom.Atom{
	CmdBold:      {atom.B, atom.Strong},
	CmdItalic:    {atom.I, atom.Em},
	CmdUnderline: {atom.U},
}

// Apply runs cmd over sel. It either applies fully or leaves the region
// untouched; the returned error only explains why nothing changed.
func (r *Region) Apply(cmd Command, value string, sel Selection) error {
	sel = sel.normalized()
	if sel.Start < 0 {
		sel.Start = 0
	}
	if n := r.Len(); sel.End > n {
		sel.End = n
	}
	if sel.Start >= sel.End {
		return ErrNoSelection
	}
	value = strings.TrimSpace(value)
	if cmd.NeedsValue() && !validCSSValue(value) {
		return fmt.Errorf("%w: %q", ErrInvalidValue, value)
	}

	work := cloneTree(r.root)
	nodes := isolateRange(work, sel.Start, sel.End)
	if len(nodes) == 0 {
		return ErrNoSelection
	}

	var err error
	switch cmd {
	case CmdBold, CmdItalic, CmdUnderline:
		toggle(work, nodes, toggleTags[cmd])
	case CmdColor:
		styleEach(work, nodes, "color", value)
	case CmdFontFamily:
		styleEach(work, nodes, "font-family", value)
	case CmdFontSize:
		err = wrapSize(work, nodes, value)
	case CmdClear:
		for _, n := range nodes {
			liftOut(n, work, isInlineFormatting)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	if err != nil {
		return err
	}

	normalize(work)
	r.root = work
	return nil
}

func matchAtoms(tags []atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool {
		for _, a := range tags {
			if n.DataAtom == a {
				return true
			}
		}
		return false
	}
}

// toggle removes the format when every selected node already has it and
// adds it to the unformatted nodes otherwise.
func toggle(root *html.Node, nodes []*html.Node, tags []atom.Atom) {
	match := matchAtoms(tags)
	all := true
	for _, n := range nodes {
		if closestAncestor(n, root, match) == nil {
			all = false
			break
		}
	}
	for _, n := range nodes {
		switch {
		case all:
			liftOut(n, root, match)
		case closestAncestor(n, root, match) == nil:
			wrap(n, newElement(tags[0]))
		}
	}
}

func styleEach(root *html.Node, nodes []*html.Node, prop, value string) {
	for _, n := range nodes {
		if p := n.Parent; p != root && p.DataAtom == atom.Span && p.FirstChild == n && p.LastChild == n {
			setStyleProp(p, prop, value)
			continue
		}
		span := newElement(atom.Span)
		setStyleProp(span, prop, value)
		wrap(n, span)
	}
}

// wrapSize surrounds the whole selection with one font-size span. Like a DOM
// range surround, this only works when the selection does not partially
// cover an element, i.e. both ends sit under the same parent.
func wrapSize(root *html.Node, nodes []*html.Node, value string) error {
	first, last := nodes[0], nodes[len(nodes)-1]
	parent := first.Parent
	if parent != last.Parent {
		return ErrUnwrappable
	}
	if parent != root && parent.DataAtom == atom.Span && parent.FirstChild == first && parent.LastChild == last {
		setStyleProp(parent, "font-size", value)
		return nil
	}
	span := newElement(atom.Span)
	setStyleProp(span, "font-size", value)
	parent.InsertBefore(span, first)
	for c := first; ; {
		next := c.NextSibling
		parent.RemoveChild(c)
		span.AppendChild(c)
		if c == last {
			break
		}
		c = next
	}
	return nil
}

// validCSSValue accepts colors, lengths and font-family lists while keeping
// declarations from escaping the style attribute.
func validCSSValue(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 128 {
		return false
	}
	lower := strings.ToLower(v)
	if strings.Contains(lower, "url(") || strings.Contains(lower, "expression") {
		return false
	}
	return !strings.ContainsAny(v, ";\"<>{}\\")
}
