package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentQueries(t *testing.T) {
	doc, err := ParseDocument(testPage, "http://example.com/")
	require.NoError(t, err)

	assert.Equal(t, "Moon Test", doc.Title())
	assert.Equal(t, "http://example.com/", doc.DocumentURI())
	assert.Equal(t, "html", doc.DocumentElement().TagName())
	assert.Equal(t, "body", doc.Body().TagName())

	main := doc.GetElementByID("main")
	require.NotNil(t, main)
	assert.Equal(t, "div", main.TagName())
	assert.Equal(t, "panel wide", main.CSSClass())
	assert.Equal(t, "hello world", main.InnerText())
	assert.Nil(t, doc.GetElementByID("missing"))
	assert.Nil(t, doc.GetElementByID(""))

	p := doc.QuerySelector("div.panel > p")
	require.NotNil(t, p)
	assert.Equal(t, "div", p.Parent().TagName())
	assert.Nil(t, doc.QuerySelector("section"))

	assert.Len(t, doc.QuerySelectorAll("object, iframe"), 2)
	assert.Len(t, doc.GetElementsByTagName("DIV"), 1)
}

func TestDocumentIDWithQuotes(t *testing.T) {
	doc, err := ParseDocument(`<p id='say "hi"'>a</p><p id="it's">b</p><p id="x">c</p>`, "")
	require.NoError(t, err)

	assert.Equal(t, "a", doc.GetElementByID(`say "hi"`).InnerText())
	assert.Equal(t, "b", doc.GetElementByID(`it's`).InnerText())
}

func TestElementAttributesAndProperties(t *testing.T) {
	doc, err := ParseDocument(testPage, "")
	require.NoError(t, err)
	el := doc.GetElementByID("main")
	require.NotNil(t, el)

	el.SetAttribute("data-state", "open")
	assert.Equal(t, "open", el.GetAttribute("data-state"))
	el.SetAttribute("data-state", "closed")
	assert.Equal(t, "closed", el.GetAttribute("data-state"))
	el.RemoveAttribute("data-state")
	assert.Empty(t, el.GetAttribute("data-state"))

	assert.Equal(t, "DIV", el.GetProperty("tagName"))
	assert.Equal(t, "main", el.GetProperty("id"))

	el.SetProperty("answer", 42)
	assert.Equal(t, 42, el.GetProperty("answer"))
	assert.Nil(t, el.GetProperty("unset"))

	el.SetProperty("innerText", "replaced")
	assert.Equal(t, "replaced", el.InnerText())
	assert.Empty(t, el.Children())

	el.SetProperty("className", "narrow")
	assert.Equal(t, "narrow", el.CSSClass())
}

func TestElementTreeEditing(t *testing.T) {
	doc, err := ParseDocument(`<html><body><ul id="list"></ul></body></html>`, "")
	require.NoError(t, err)
	list := doc.GetElementByID("list")
	require.NotNil(t, list)

	item := doc.CreateElement("LI")
	assert.Equal(t, "li", item.TagName())
	assert.Nil(t, item.Parent())

	item.SetProperty("textContent", "one")
	list.AppendChild(item)
	require.Len(t, list.Children(), 1)
	assert.Equal(t, `<ul id="list"><li>one</li></ul>`, list.OuterHTML())
	assert.Contains(t, doc.HTML(), "<li>one</li>")

	list.RemoveChild(item)
	assert.Empty(t, list.Children())
}

func TestEmptyDocument(t *testing.T) {
	doc := NewDocument(nil, "")
	require.NotNil(t, doc.Body())
	assert.Empty(t, doc.Title())
}

func TestInnerHTMLIsSanitized(t *testing.T) {
	doc, err := ParseDocument(testPage, "")
	require.NoError(t, err)
	main := doc.GetElementByID("main")
	require.NotNil(t, main)

	require.NoError(t, main.SetInnerHTML(`<em>hi</em><script>alert(1)</script><a href="javascript:x()" onclick="y()">link</a>`))
	inner := main.InnerHTML()
	assert.Contains(t, inner, "<em>hi</em>")
	assert.NotContains(t, inner, "script")
	assert.NotContains(t, inner, "onclick")
	assert.NotContains(t, inner, "javascript:")
	assert.Equal(t, "hilink", main.InnerText())

	main.SetProperty("innerHTML", "<b>bold</b>")
	assert.Equal(t, "<b>bold</b>", main.GetProperty("innerHTML"))
	require.NotNil(t, doc.QuerySelector("#main > b"))
}
