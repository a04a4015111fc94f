package export

import (
	"strings"

	"scriptroom/api/internal/document"
)

var sceneHeadingPrefixes = []string{"INT.", "EXT.", "INT/EXT", "I/E", "EST."}

// ToFountain writes a project as Fountain plain text with a title page.
func ToFountain(p document.Project) string {
	var b strings.Builder
	writeTitlePage(&b, p.Metadata)

	var prev document.BlockType
	first := true
	for _, block := range p.Content {
		text := strings.TrimSpace(block.Content)
		if text == "" {
			continue
		}
		if !first {
			if continuesSpeech(prev, block.Type) {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(fountainLine(block.Type, text))
		prev = block.Type
		first = false
	}
	b.WriteString("\n")
	return b.String()
}

func writeTitlePage(b *strings.Builder, meta document.Metadata) {
	field := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(value, "\n", " "))
		b.WriteString("\n")
	}
	field("Title", meta.Title)
	field("Author", meta.Author)
	field("Draft date", meta.DraftDate)
	field("Notes", meta.Logline)
	field("Country", string(meta.Country))
	b.WriteString("\n")
}

// continuesSpeech reports whether next belongs to the same dialogue group as
// prev, which Fountain writes without a blank line in between.
func continuesSpeech(prev, next document.BlockType) bool {
	switch next {
	case document.BlockDialogue, document.BlockParenthetical:
		return prev == document.BlockCharacter || prev == document.BlockParenthetical || prev == document.BlockDialogue
	}
	return false
}

func fountainLine(t document.BlockType, text string) string {
	switch t {
	case document.BlockSceneHeading:
		upper := strings.ToUpper(text)
		for _, prefix := range sceneHeadingPrefixes {
			if strings.HasPrefix(upper, prefix) {
				return upper
			}
		}
		return "." + upper
	case document.BlockCharacter:
		return strings.ToUpper(text)
	case document.BlockParenthetical:
		if !strings.HasPrefix(text, "(") {
			text = "(" + text
		}
		if !strings.HasSuffix(text, ")") {
			text += ")"
		}
		return text
	case document.BlockTransition:
		upper := strings.ToUpper(text)
		if strings.HasSuffix(upper, "TO:") {
			return upper
		}
		return "> " + upper
	case document.BlockShot:
		return strings.ToUpper(text)
	case document.BlockAction:
		if strings.ToUpper(text) == text && strings.ContainsAny(text, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			return "!" + text
		}
		return text
	default:
		return text
	}
}
