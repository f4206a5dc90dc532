// Package hierarchy turns a uiautomator window dump into a flat, pre-order
// list of on-screen elements.
package hierarchy

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// Inferred actions
const (
	ActionTap  = "tap"
	ActionRead = "read"
)

// Rect is an element's screen rectangle, [x1,y1][x2,y2].
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Center returns the integer midpoint, truncated toward zero.
func (r Rect) Center() core.Point {
	return core.Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Width returns the rectangle width.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the rectangle height.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// String formats the rectangle in dump notation.
func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.X1, r.Y1, r.X2, r.Y2)
}

// Element is one on-screen UI node.
type Element struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"` // falls back to Description
	RawText     string     `json:"-"`    // text attribute as dumped
	Description string     `json:"desc"`
	Type        string     `json:"type"`
	Bounds      string     `json:"bounds"`
	Rect        Rect       `json:"-"`
	Center      core.Point `json:"center"`
	Clickable   bool       `json:"clickable"`
	Focusable   bool       `json:"focusable"`
	Action      string     `json:"action"`
}

// node is a raw dump node before filtering.
type node struct {
	resourceID  string
	text        string
	contentDesc string
	class       string
	bounds      string
	clickable   bool
	focusable   bool
	children    []*node
}

var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseBounds parses "[x1,y1][x2,y2]". Anything else is an error.
func ParseBounds(s string) (Rect, error) {
	m := boundsPattern.FindStringSubmatch(s)
	if m == nil {
		return Rect{}, fmt.Errorf("malformed bounds %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Rect{}, fmt.Errorf("malformed bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Parse returns the interactive or informative elements of a dump in
// pre-order. A node is kept when it is clickable, focusable or carries text
// or a description, and its bounds parse. A document that cannot be decoded
// yields nil and a parse error.
func Parse(dump string) ([]Element, error) {
	return parse(dump, true)
}

// ParseAll is Parse without the retention filter: every node whose bounds
// parse is returned.
func ParseAll(dump string) ([]Element, error) {
	return parse(dump, false)
}

func parse(dump string, retain bool) ([]Element, error) {
	roots, err := decodeTree(dump)
	if err != nil {
		return nil, core.ErrParse.WithCause(err)
	}

	elements := []Element{}
	for _, root := range roots {
		for _, n := range flatten(root) {
			if retain && !n.informative() {
				continue
			}
			rect, err := ParseBounds(n.bounds)
			if err != nil {
				continue
			}
			elements = append(elements, n.element(rect))
		}
	}
	return elements, nil
}

// decodeTree reads the whole document. Any syntax error, or a document with
// no root element, fails.
func decodeTree(dump string) ([]*node, error) {
	decoder := xml.NewDecoder(strings.NewReader(dump))

	var parseNode func(start xml.StartElement) (*node, error)
	parseNode = func(start xml.StartElement) (*node, error) {
		n := &node{}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "resource-id":
				n.resourceID = attr.Value
			case "text":
				n.text = attr.Value
			case "content-desc":
				n.contentDesc = attr.Value
			case "class":
				n.class = attr.Value
			case "bounds":
				n.bounds = attr.Value
			case "clickable":
				n.clickable = attr.Value == "true"
			case "focusable", "focus":
				n.focusable = n.focusable || attr.Value == "true"
			}
		}

		// Children until our own end tag
		for {
			token, err := decoder.Token()
			if err != nil {
				return nil, err
			}
			switch t := token.(type) {
			case xml.StartElement:
				child, err := parseNode(t)
				if err != nil {
					return nil, err
				}
				n.children = append(n.children, child)
			case xml.EndElement:
				return n, nil
			}
		}
	}

	var roots []*node
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if start, ok := token.(xml.StartElement); ok {
			if len(roots) > 0 {
				return nil, fmt.Errorf("junk after document element")
			}
			root, err := parseNode(start)
			if err != nil {
				return nil, err
			}
			roots = append(roots, root)
		}
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("no element found")
	}
	return roots, nil
}

// flatten walks the tree node-before-children, left to right.
func flatten(n *node) []*node {
	result := []*node{n}
	for _, child := range n.children {
		result = append(result, flatten(child)...)
	}
	return result
}

func (n *node) informative() bool {
	return n.clickable || n.focusable || n.text != "" || n.contentDesc != ""
}

func (n *node) element(rect Rect) Element {
	text := n.text
	if text == "" {
		text = n.contentDesc
	}
	action := ActionRead
	if n.clickable {
		action = ActionTap
	}
	return Element{
		ID:          n.resourceID,
		Text:        text,
		RawText:     n.text,
		Description: n.contentDesc,
		Type:        shortClass(n.class),
		Bounds:      n.bounds,
		Rect:        rect,
		Center:      rect.Center(),
		Clickable:   n.clickable,
		Focusable:   n.focusable,
		Action:      action,
	}
}

// shortClass returns the trailing dot-separated component of a class name.
func shortClass(class string) string {
	if i := strings.LastIndex(class, "."); i >= 0 {
		return class[i+1:]
	}
	return class
}
