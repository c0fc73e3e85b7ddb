package utils

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CountWords counts whitespace-separated words in plain or markdown text
func CountWords(text string) int {
	text = cleanMarkdown(text)
	return len(strings.FieldsFunc(text, unicode.IsSpace))
}

// CountChars counts characters (runes), excluding line breaks
func CountChars(text string) int {
	n := utf8.RuneCountInString(text)
	return n - strings.Count(text, "\n") - strings.Count(text, "\r")
}

// ExtractText returns the readable text inside editor JSON content.
// Text nodes ({"type":"text","text":"..."}) are concatenated; block nodes
// (paragraph, heading, listItem, ...) are separated by newlines. Content that
// is a plain JSON string is returned as-is.
func ExtractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var root interface{}
	if err := json.Unmarshal(content, &root); err != nil {
		return ""
	}

	var b strings.Builder
	collectText(&b, root)
	return strings.TrimSpace(b.String())
}

// CountContent returns word and character counts of editor JSON content
func CountContent(content json.RawMessage) (words, chars int) {
	text := ExtractText(content)
	return CountWords(text), CountChars(text)
}

func collectText(b *strings.Builder, node interface{}) {
	switch n := node.(type) {
	case string:
		b.WriteString(n)
	case []interface{}:
		for _, child := range n {
			collectText(b, child)
		}
	case map[string]interface{}:
		if text, ok := n["text"].(string); ok {
			b.WriteString(text)
		}
		nodeType, _ := n["type"].(string)
		if nodeType == "hardBreak" {
			b.WriteString("\n")
		}
		if children, ok := n["content"]; ok {
			collectText(b, children)
		}
		// Form-style content: {"summary": "...", "budget": {...}}
		if nodeType == "" {
			for key, value := range n {
				if key == "text" || key == "content" {
					continue
				}
				if _, isNum := value.(float64); isNum {
					continue
				}
				collectText(b, value)
				b.WriteString("\n")
			}
		}
		if isBlockNode(nodeType) {
			b.WriteString("\n")
		}
	}
}

func isBlockNode(nodeType string) bool {
	switch nodeType {
	case "paragraph", "heading", "listItem", "blockquote", "codeBlock", "tableCell", "tableHeader":
		return true
	}
	return false
}

func cleanMarkdown(markdown string) string {
	text := removeCodeBlocks(markdown)

	// Emphasis and code markers
	for _, marker := range []string{"`", "**", "*", "__", "~~", "#", ">"} {
		text = strings.ReplaceAll(text, marker, "")
	}

	// List markers
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if len(line) > 2 && unicode.IsDigit(rune(line[0])) && line[1] == '.' {
			line = line[2:]
		}
		lines[i] = line
	}
	text = strings.Join(lines, " ")

	// Horizontal rules
	return strings.ReplaceAll(text, "---", "")
}

func removeCodeBlocks(text string) string {
	for {
		start := strings.Index(text, "```")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+3:], "```")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+6:]
	}
	return text
}
