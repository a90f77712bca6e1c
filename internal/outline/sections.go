// Package outline scans markdown headings with byte offsets and splices
// milestone entries into an objective description without touching the
// surrounding text.
package outline

import (
	"regexp"
	"strings"
)

// Section is one heading and the byte range it governs.
type Section struct {
	Header       string // full header line "#### COMMITTED MILESTONES"
	Name         string // header text "COMMITTED MILESTONES"
	Level        int    // number of leading #
	HeaderStart  int    // byte offset of header start
	HeaderEnd    int    // byte offset after header text (before \n)
	ContentStart int    // byte offset where content starts
	ContentEnd   int    // byte offset of the next heading, or EOF
}

// headerPattern matches ATX headings (h1-h6) at the start of a line.
// Groups: hashes, header text. Trailing blanks (and a CR) are not captured.
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+([^\n]+?)[ \t\r]*$`)

// fencePattern matches fenced code block delimiters (``` or ~~~) with at most
// three spaces of indentation.
var fencePattern = regexp.MustCompile("(?m)^[ ]{0,3}(`{3,}|~{3,})")

// fencedRanges returns [start, end) byte ranges of fenced code blocks. A
// closing fence uses the same character and is at least as long as the
// opening one. An unclosed fence runs to EOF.
func fencedRanges(text string) [][2]int {
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var ranges [][2]int
	var openChar byte
	var openLen, openStart int
	inFence := false

	for _, m := range matches {
		fence := text[m[2]:m[3]]
		switch {
		case !inFence:
			openChar, openLen, openStart = fence[0], len(fence), m[0]
			inFence = true
		case fence[0] == openChar && len(fence) >= openLen:
			ranges = append(ranges, [2]int{openStart, m[1]})
			inFence = false
		}
	}
	if inFence {
		ranges = append(ranges, [2]int{openStart, len(text)})
	}
	return ranges
}

func insideFence(pos int, ranges [][2]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// ParseSections returns every heading outside fenced code, in order.
func ParseSections(text string) []Section {
	all := headerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(all) == 0 {
		return nil
	}

	fences := fencedRanges(text)
	matches := all[:0:0]
	for _, m := range all {
		if !insideFence(m[0], fences) {
			matches = append(matches, m)
		}
	}

	sections := make([]Section, len(matches))
	for i, m := range matches {
		contentStart := m[1]
		for contentStart < len(text) && text[contentStart] != '\n' {
			contentStart++
		}
		if contentStart < len(text) {
			contentStart++
		}

		contentEnd := len(text)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}

		sections[i] = Section{
			Header:       text[m[0]:m[1]],
			Name:         text[m[4]:m[5]],
			Level:        m[3] - m[2],
			HeaderStart:  m[0],
			HeaderEnd:    m[1],
			ContentStart: contentStart,
			ContentEnd:   contentEnd,
		}
	}
	return sections
}

// Find returns the index of the first section whose trimmed name equals name
// (case-insensitive), searching from index from. Returns -1 when absent.
func Find(sections []Section, name string, from int) int {
	for i := from; i < len(sections); i++ {
		if strings.EqualFold(strings.TrimSpace(sections[i].Name), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Names lists the header names, for error messages.
func Names(sections []Section) []string {
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.Name
	}
	return names
}
