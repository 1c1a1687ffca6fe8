package client

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/fatih/color"
	xhtml "golang.org/x/net/html"

	"github.com/wolfeidau/hackpad-cli"
)

// styles holds the colors used in command output.
type styles struct {
	site  *color.Color
	title *color.Color
	id    *color.Color
	hit   *color.Color
}

func newStyles(enabled bool) *styles {
	s := &styles{
		site:  color.New(color.FgBlue),
		title: color.New(color.FgYellow),
		id:    color.New(color.Bold),
		hit:   color.New(color.FgCyan, color.Bold),
	}
	for _, c := range []*color.Color{s.site, s.title, s.id, s.hit} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func (c *Client) table(key, value string) {
	fmt.Fprintf(c.out, "%-20s %s\n", key, value)
}

func (c *Client) padLine(p hackpad.Summary) string {
	return c.urlPrefix() + p.ID + " - " + p.Title
}

func (c *Client) idOrURL(id string) string {
	return c.urlPrefix() + c.style.id.Sprint(id)
}

func (c *Client) urlPrefix() string {
	if c.urls {
		return c.site + "/"
	}
	return ""
}

// highlight renders a search snippet as text, coloring the spans the site
// marks with <b class="hit">. The snippet is entity-unescaped before the
// markup is parsed, so escaped hit tags are highlighted as well.
func (c *Client) highlight(snippet string) string {
	snippet = unescape(snippet)
	doc, err := xhtml.Parse(strings.NewReader(snippet))
	if err != nil {
		return snippet
	}

	var b strings.Builder
	var walk func(n *xhtml.Node, hit bool)
	walk = func(n *xhtml.Node, hit bool) {
		if n.Type == xhtml.TextNode {
			if hit {
				b.WriteString(c.style.hit.Sprint(n.Data))
			} else {
				b.WriteString(n.Data)
			}
			return
		}
		if n.Type == xhtml.ElementNode && n.Data == "b" && hasClass(n, "hit") {
			hit = true
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, hit)
		}
	}
	walk(doc, false)

	return b.String()
}

func hasClass(n *xhtml.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(" "+attr.Val+" ", " "+class+" ") {
			return true
		}
	}
	return false
}

func unescape(s string) string {
	return html.UnescapeString(s)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
