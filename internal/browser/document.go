package browser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// markupPolicy filters markup written through innerHTML. Scripts, event
// handler attributes and javascript: URLs are dropped.
var markupPolicy = bluemonday.UGCPolicy()

// HtmlDocument is the hosting page's document.
type HtmlDocument struct {
	mu    sync.RWMutex
	root  *html.Node
	query *goquery.Document
	uri   string

	// expando properties set from managed code, keyed by node
	props map[*html.Node]map[string]any
}

// NewDocument wraps a parsed document. A nil root yields an empty
// <html><head></head><body></body></html> tree.
func NewDocument(root *html.Node, uri string) *HtmlDocument {
	if root == nil {
		root, _ = html.Parse(strings.NewReader(""))
	}
	return &HtmlDocument{
		root:  root,
		query: goquery.NewDocumentFromNode(root),
		uri:   uri,
		props: make(map[*html.Node]map[string]any),
	}
}

// ParseDocument parses markup into a document.
func ParseDocument(markup, uri string) (*HtmlDocument, error) {
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return NewDocument(root, uri), nil
}

// DocumentURI returns the address the document was loaded from.
func (d *HtmlDocument) DocumentURI() string { return d.uri }

// Title returns the text of the <title> element.
func (d *HtmlDocument) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.TrimSpace(d.query.Find("title").First().Text())
}

// DocumentElement returns the <html> element.
func (d *HtmlDocument) DocumentElement() *HtmlElement {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap(htmlquery.FindOne(d.root, "/html"))
}

// Body returns the <body> element.
func (d *HtmlDocument) Body() *HtmlElement {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap(htmlquery.FindOne(d.root, "//body"))
}

// GetElementByID returns the first element with the given id, or nil.
func (d *HtmlDocument) GetElementByID(id string) *HtmlElement {
	if id == "" {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap(d.findByID(id))
}

func (d *HtmlDocument) findByID(id string) *html.Node {
	switch {
	case !strings.Contains(id, `"`):
		return htmlquery.FindOne(d.root, `//*[@id="`+id+`"]`)
	case !strings.Contains(id, `'`):
		return htmlquery.FindOne(d.root, `//*[@id='`+id+`']`)
	}
	var found *html.Node
	d.query.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("id"); ok && v == id {
			found = s.Get(0)
			return false
		}
		return true
	})
	return found
}

// GetElementsByTagName returns elements with the given tag in document order.
func (d *HtmlDocument) GetElementsByTagName(tag string) []*HtmlElement {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrapAll(d.query.Find(strings.ToLower(tag)))
}

// QuerySelector returns the first element matching a CSS selector, or nil.
func (d *HtmlDocument) QuerySelector(selector string) *HtmlElement {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sel := d.query.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return d.wrap(sel.Get(0))
}

// QuerySelectorAll returns all elements matching a CSS selector.
func (d *HtmlDocument) QuerySelectorAll(selector string) []*HtmlElement {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrapAll(d.query.Find(selector))
}

// CreateElement returns a detached element.
func (d *HtmlDocument) CreateElement(tag string) *HtmlElement {
	tag = strings.ToLower(tag)
	return d.wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	})
}

// HTML renders the document.
func (d *HtmlDocument) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return htmlquery.OutputHTML(d.root, true)
}

func (d *HtmlDocument) wrap(n *html.Node) *HtmlElement {
	if n == nil {
		return nil
	}
	return &HtmlElement{doc: d, node: n}
}

func (d *HtmlDocument) wrapAll(sel *goquery.Selection) []*HtmlElement {
	out := make([]*HtmlElement, 0, sel.Length())
	for _, n := range sel.Nodes {
		out = append(out, d.wrap(n))
	}
	return out
}

// HtmlElement is one element of an HtmlDocument.
type HtmlElement struct {
	doc  *HtmlDocument
	node *html.Node
}

// TagName returns the lower-case tag name.
func (e *HtmlElement) TagName() string { return e.node.Data }

// ID returns the id attribute.
func (e *HtmlElement) ID() string { return e.GetAttribute("id") }

// CSSClass returns the class attribute.
func (e *HtmlElement) CSSClass() string { return e.GetAttribute("class") }

// GetAttribute returns an attribute value, or "" when absent.
func (e *HtmlElement) GetAttribute(name string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.SelectAttr(e.node, name)
}

// SetAttribute sets or replaces an attribute.
func (e *HtmlElement) SetAttribute(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i := range e.node.Attr {
		if e.node.Attr[i].Key == name {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttribute deletes an attribute if present.
func (e *HtmlElement) RemoveAttribute(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	attrs := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Key != name {
			attrs = append(attrs, a)
		}
	}
	e.node.Attr = attrs
}

// GetProperty reads a DOM property. The standard properties id, tagName,
// className and innerText are derived from the node; anything else is an
// expando previously set with SetProperty.
func (e *HtmlElement) GetProperty(name string) any {
	switch name {
	case "id":
		return e.ID()
	case "tagName":
		return strings.ToUpper(e.TagName())
	case "className":
		return e.CSSClass()
	case "innerText", "textContent":
		return e.InnerText()
	case "innerHTML":
		return e.InnerHTML()
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.props[e.node][name]
}

// SetProperty writes a DOM property.
func (e *HtmlElement) SetProperty(name string, value any) {
	switch name {
	case "id":
		e.SetAttribute("id", fmt.Sprint(value))
		return
	case "className":
		e.SetAttribute("class", fmt.Sprint(value))
		return
	case "innerText", "textContent":
		e.setText(fmt.Sprint(value))
		return
	case "innerHTML":
		_ = e.SetInnerHTML(fmt.Sprint(value))
		return
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	props := e.doc.props[e.node]
	if props == nil {
		props = make(map[string]any)
		e.doc.props[e.node] = props
	}
	props[name] = value
}

func (e *HtmlElement) setText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// InnerText returns the concatenated text of the element's subtree.
func (e *HtmlElement) InnerText() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.InnerText(e.node)
}

// InnerHTML renders the element's children.
func (e *HtmlElement) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.OutputHTML(e.node, false)
}

// SetInnerHTML replaces the element's children with sanitized markup.
func (e *HtmlElement) SetInnerHTML(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markupPolicy.Sanitize(markup)), e.node)
	if err != nil {
		return fmt.Errorf("parse markup: %w", err)
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	return nil
}

// OuterHTML renders the element and its subtree.
func (e *HtmlElement) OuterHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return htmlquery.OutputHTML(e.node, true)
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *HtmlElement) Parent() *HtmlElement {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

// Children returns the child elements.
func (e *HtmlElement) Children() []*HtmlElement {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var out []*HtmlElement
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

// AppendChild moves child under e.
func (e *HtmlElement) AppendChild(child *HtmlElement) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
}

// RemoveChild detaches child if it belongs to e.
func (e *HtmlElement) RemoveChild(child *HtmlElement) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if child.node.Parent == e.node {
		e.node.RemoveChild(child.node)
	}
}
