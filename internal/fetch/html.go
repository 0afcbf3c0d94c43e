package fetch

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the readable text of a fetched document.
type Page struct {
	Title string
	Text  string
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Title:    true,
	atom.Nav:      true,
	atom.Footer:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
	atom.Dt: true, atom.Dd: true, atom.Blockquote: true, atom.Pre: true,
}

// ExtractHTML converts an HTML document into plain text, one block per line.
// Malformed markup is tolerated; the tokenizer recovers the same way browsers do.
func ExtractHTML(doc string) Page {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Page{Text: strings.TrimSpace(doc)}
	}

	var page Page
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && page.Title == "" && n.FirstChild != nil {
				page.Title = collapseSpace(n.FirstChild.Data)
			}
			if skipElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if text := collapseSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	walk(root)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	page.Text = strings.Join(lines, "\n")
	return page
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var errorTitleMarkers = []string{
	"404", "not found", "access denied", "forbidden", "just a moment",
	"attention required", "captcha", "server error", "service unavailable",
}

var errorBodyMarkers = []string{
	"404 not found", "page not found", "access denied", "just a moment...",
	"enable javascript and cookies", "checking your browser", "are you a robot",
	"no results found", "does not have an article with this exact name",
}

// rejectReason returns why a page is not usable, or "" if it is.
func rejectReason(page Page, minContent int) string {
	if strings.TrimSpace(page.Text) == "" {
		return "empty body"
	}
	title := strings.ToLower(page.Title)
	for _, marker := range errorTitleMarkers {
		if strings.Contains(title, marker) {
			return fmt.Sprintf("error page (title %q)", page.Title)
		}
	}
	head := strings.ToLower(page.Text)
	if len(head) > 600 {
		head = head[:600]
	}
	for _, marker := range errorBodyMarkers {
		if strings.Contains(head, marker) {
			return fmt.Sprintf("error page (%q)", marker)
		}
	}
	if n := len([]rune(page.Text)); n < minContent {
		return fmt.Sprintf("content too short (%d chars)", n)
	}
	return ""
}
