package googlebooks

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var extraBlankLines = regexp.MustCompile(`\n{3,}`)

// CleanDescription converts the HTML snippet Google Books returns into
// plain text. Line breaks and paragraphs become newlines, list items
// become bullets and every other tag is dropped.
func CleanDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	trimNext := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			text := extraBlankLines.ReplaceAllString(b.String(), "\n\n")
			return strings.TrimSpace(text)
		case html.TextToken:
			text := string(z.Text())
			if trimNext {
				text = strings.TrimLeft(text, " \t\r\n\f")
				trimNext = text == ""
			}
			b.WriteString(text)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			trimNext = false
			switch string(name) {
			case "br":
				b.WriteString("\n")
			case "li":
				b.WriteString("• ")
				trimNext = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			trimNext = false
			switch string(name) {
			case "p":
				b.WriteString("\n\n")
			case "li":
				b.WriteString("\n")
			}
		}
	}
}
