// File: internal/browser/dom.go
package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
)

// descriptionLimit caps element descriptions rendered into the action space.
const descriptionLimit = 120

// indexElements walks the document and assigns short IDs to every
// interactive element: L# for links, B# for buttons and submit inputs, I#
// for text inputs, textareas and selects. Selectors are positional XPaths
// valid against the same parse of the document.
func indexElements(doc *html.Node) []schemas.InteractiveElement {
	var elements []schemas.InteractiveElement
	var links, buttons, inputs int

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if attrValue(n, "href") != "" {
					links++
					elements = append(elements, schemas.InteractiveElement{
						ID:          fmt.Sprintf("L%d", links),
						Kind:        "link",
						Description: describe(n),
						Selector:    selectorFor(n),
					})
				}
			case "button":
				buttons++
				elements = append(elements, schemas.InteractiveElement{
					ID:          fmt.Sprintf("B%d", buttons),
					Kind:        "button",
					Description: describe(n),
					Selector:    selectorFor(n),
				})
			case "input":
				inputType := strings.ToLower(attrValue(n, "type"))
				switch inputType {
				case "submit", "button":
					buttons++
					elements = append(elements, schemas.InteractiveElement{
						ID:          fmt.Sprintf("B%d", buttons),
						Kind:        "button",
						Description: describe(n),
						Selector:    selectorFor(n),
					})
				case "hidden", "reset":
				default:
					inputs++
					elements = append(elements, schemas.InteractiveElement{
						ID:          fmt.Sprintf("I%d", inputs),
						Kind:        "input",
						Description: describe(n),
						Selector:    selectorFor(n),
					})
				}
			case "textarea", "select":
				inputs++
				elements = append(elements, schemas.InteractiveElement{
					ID:          fmt.Sprintf("I%d", inputs),
					Kind:        "input",
					Description: describe(n),
					Selector:    selectorFor(n),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return elements
}

// selectorFor builds a positional XPath for the node, stable for the
// lifetime of the current parse.
func selectorFor(n *html.Node) string {
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		pos := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				pos++
			}
		}
		segments = append([]string{fmt.Sprintf("%s[%d]", cur.Data, pos)}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}

// describe derives a short human readable label for an element.
func describe(n *html.Node) string {
	candidates := []string{
		strings.TrimSpace(nodeText(n)),
		attrValue(n, "aria-label"),
		attrValue(n, "placeholder"),
		attrValue(n, "title"),
		attrValue(n, "value"),
		attrValue(n, "name"),
		attrValue(n, "alt"),
	}
	for _, c := range candidates {
		if c != "" {
			return truncate(collapseSpace(c), descriptionLimit)
		}
	}
	return fmt.Sprintf("<%s>", n.Data)
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

// enclosingForm walks up to the nearest form ancestor.
func enclosingForm(n *html.Node) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == "form" {
			return cur
		}
	}
	return nil
}

// nodeText concatenates the direct text content of a node and its children.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

// extractText renders the readable text of the whole document, skipping
// script and style subtrees.
func extractText(doc *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
