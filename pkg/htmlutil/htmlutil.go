// Package htmlutil exposes the small set of document queries the scrapers are
// written against, so that parsing logic does not depend on goquery directly.
package htmlutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is a single element (or the document root) of a parsed html document.
type Node interface {
	// ByID returns the first descendant element with the given id attribute.
	ByID(id string) (Node, bool)
	// Descendants returns all descendant elements with the given tag name in
	// document order, an empty tag matches every element.
	Descendants(tag string) []Node
	// Children returns the direct child elements with the given tag name, an
	// empty tag matches every element.
	Children(tag string) []Node
	// Parent returns the parent element.
	Parent() (Node, bool)
	// Next returns the immediately following sibling element.
	Next() (Node, bool)
	// Tag returns the lowercase tag name of the element.
	Tag() string
	// Text returns the combined text contents of the element and its descendants.
	Text() string
}

// Parse parses an html document, the input is never modified.
func Parse(markup string) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return FromSelection(doc.Selection), nil
}

// FromSelection wraps the first node of a goquery selection.
func FromSelection(sel *goquery.Selection) Node {
	return selectionNode{sel: sel.First()}
}

type selectionNode struct {
	sel *goquery.Selection
}

func wrapAll(sel *goquery.Selection) []Node {
	nodes := make([]Node, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		nodes[i] = selectionNode{sel: s}
	})
	return nodes
}

func tagSelector(tag string) string {
	if tag == "" {
		return "*"
	}
	return tag
}

func (n selectionNode) ByID(id string) (Node, bool) {
	found := n.sel.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		value, ok := s.Attr("id")
		return ok && value == id
	}).First()
	if found.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: found}, true
}

func (n selectionNode) Descendants(tag string) []Node {
	return wrapAll(n.sel.Find(tagSelector(tag)))
}

func (n selectionNode) Children(tag string) []Node {
	if tag == "" {
		return wrapAll(n.sel.Children())
	}
	return wrapAll(n.sel.ChildrenFiltered(tag))
}

func (n selectionNode) Parent() (Node, bool) {
	parent := n.sel.Parent()
	if parent.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: parent}, true
}

func (n selectionNode) Next() (Node, bool) {
	next := n.sel.Next()
	if next.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: next}, true
}

func (n selectionNode) Tag() string {
	if n.sel.Length() == 0 {
		return ""
	}
	node := n.sel.Get(0)
	if node.Type != html.ElementNode {
		return ""
	}
	return node.Data
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}

// TrimmedText is the text of a node with surrounding whitespace removed, a nil
// node has no text.
func TrimmedText(n Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text())
}
