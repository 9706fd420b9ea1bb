package profilefetch

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// pageMeta holds the parts of a page the extractors read: the title and
// all meta tags keyed by property or name attribute.
type pageMeta struct {
	title      string
	properties map[string]string
	names      map[string]string
}

func (p *pageMeta) property(key string) string { return p.properties[key] }
func (p *pageMeta) name(key string) string     { return p.names[key] }

func parsePage(body []byte) (*pageMeta, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	page := &pageMeta{
		properties: make(map[string]string),
		names:      make(map[string]string),
	}
	walk(doc, page)
	return page, nil
}

func walk(n *html.Node, page *pageMeta) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if page.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				page.title = n.FirstChild.Data
			}
		case "meta":
			var property, name, content string
			for _, attr := range n.Attr {
				switch strings.ToLower(attr.Key) {
				case "property":
					property = attr.Val
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if property != "" {
				if _, seen := page.properties[property]; !seen {
					page.properties[property] = content
				}
			}
			if name != "" {
				if _, seen := page.names[name]; !seen {
					page.names[name] = content
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, page)
	}
}
