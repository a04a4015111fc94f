package export

import (
	"html"
	"strings"

	"scriptroom/api/internal/document"
)

// ScreenplayToHTML renders blocks as paragraphs classed by block type. Layout
// (indents, capitals) comes from the stylesheet in the page template.
func ScreenplayToHTML(blocks []document.Block) string {
	var b strings.Builder
	for _, block := range blocks {
		class := string(block.Type)
		if !block.Type.Valid() {
			class = string(document.BlockAction)
		}
		b.WriteString(`<p class="block `)
		b.WriteString(class)
		b.WriteString(`">`)
		content := strings.TrimSpace(block.Content)
		if content == "" {
			b.WriteString("&nbsp;")
		} else {
			b.WriteString(strings.ReplaceAll(html.EscapeString(content), "\n", "<br>"))
		}
		b.WriteString("</p>\n")
	}
	return b.String()
}
