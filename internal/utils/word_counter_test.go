package utils

import (
	"encoding/json"
	"testing"
)

func TestCountWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "plain", text: "the quick brown fox", want: 4},
		{name: "markdown markers", text: "# Title\n\n**bold** and _x_", want: 4},
		{name: "list", text: "- one\n- two\n1. three", want: 3},
		{name: "code block removed", text: "before ```code here``` after", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountWords(tt.text); got != tt.want {
				t.Errorf("CountWords(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "empty", content: ``, want: ""},
		{name: "invalid json", content: `{`, want: ""},
		{name: "plain string", content: `"hello world"`, want: "hello world"},
		{
			name: "editor document",
			content: `{"type":"doc","content":[
				{"type":"heading","content":[{"type":"text","text":"Budget"}]},
				{"type":"paragraph","content":[{"type":"text","text":"Total "},{"type":"text","text":"outlay"}]}
			]}`,
			want: "Budget\nTotal outlay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(json.RawMessage(tt.content)); got != tt.want {
				t.Errorf("ExtractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountContent(t *testing.T) {
	content := json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"two words"}]}]}`)
	words, chars := CountContent(content)
	if words != 2 {
		t.Errorf("words = %d, want 2", words)
	}
	if chars != 9 {
		t.Errorf("chars = %d, want 9", chars)
	}
}
