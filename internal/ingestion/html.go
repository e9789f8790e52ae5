package ingestion

import (
	"strings"

	"golang.org/x/net/html"
)

// skipElements hold no readable article text.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"header": true, "footer": true, "svg": true, "form": true,
}

// blockElements end a paragraph.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "br": true,
	"li": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "blockquote": true, "pre": true,
}

// htmlText returns the page title and its visible text, with block
// elements separated by blank lines so the chunker sees paragraphs.
func htmlText(src string) (title, body string) {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	inTitle := false

	for {
		switch tt := z.Next(); tt {
		case html.ErrorToken:
			return strings.TrimSpace(title), collapseBlankLines(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipElements[tag]:
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "title":
				inTitle = true
			case blockElements[tag]:
				b.WriteString("\n\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipElements[tag] && skip > 0:
				skip--
			case tag == "title":
				inTitle = false
			case blockElements[tag]:
				b.WriteString("\n\n")
			}

		case html.TextToken:
			text := strings.Join(strings.Fields(string(z.Text())), " ")
			switch {
			case text == "" || skip > 0:
			case inTitle:
				title += text
			default:
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
	}
}

// collapseBlankLines trims each paragraph and joins them with one blank line.
func collapseBlankLines(s string) string {
	var paras []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}
