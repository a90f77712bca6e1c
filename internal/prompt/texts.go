package prompt

import (
	"embed"
	"strings"
)

//go:embed texts/*.md
var textFS embed.FS

func mustText(name string) string {
	data, err := textFS.ReadFile("texts/" + name)
	if err != nil {
		panic("prompt: missing embedded text " + name)
	}
	return strings.TrimSpace(string(data))
}

// Fixed prompt texts.
var (
	SystemIntro             = mustText("intro.md")
	PRDTemplate             = mustText("prd_template.md")
	CriticalRules           = mustText("critical_rules.md")
	TranscriptSystemPrompt  = mustText("transcript_system.md")
	transcriptExtractionTop = mustText("transcript_extraction.md")
)

// TranscriptExtraction returns the user turn asking for the planning signal of a transcript.
func TranscriptExtraction(transcript string) string {
	return transcriptExtractionTop + "\n" + transcript
}
