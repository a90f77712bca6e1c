package outline

import (
	"regexp"
	"strings"
)

// Section names used by the objective template.
const (
	MilestonesHeader     = "MILESTONES"
	CommittedHeader      = "COMMITTED MILESTONES"
	EngineeringHeader    = "ENGINEERING CONSIDERATIONS"
	newMilestonesSection = "# " + MilestonesHeader + "\n#### " + CommittedHeader + "\n\n"
)

// AppendMilestone inserts entry into the milestones section of description.
//
// The anchor is COMMITTED MILESTONES when it sits under MILESTONES, else
// MILESTONES itself. The entry goes just before the next heading at the
// anchor's level or higher, or at EOF. Without a MILESTONES heading a new
// "# MILESTONES / #### COMMITTED MILESTONES" section holding the entry is
// placed before ENGINEERING CONSIDERATIONS when present, else at the end.
// Existing text is never rewritten; only separators are added.
func AppendMilestone(description, entry string) string {
	entry = strings.Trim(entry, "\n")
	sections := ParseSections(description)

	ms := Find(sections, MilestonesHeader, 0)
	if ms < 0 {
		if eng := Find(sections, EngineeringHeader, 0); eng >= 0 {
			return insertAt(description, sections[eng].HeaderStart, newMilestonesSection+entry)
		}
		return insertAt(description, len(description), newMilestonesSection+entry)
	}

	anchor := ms
	for i := ms + 1; i < len(sections) && sections[i].Level > sections[ms].Level; i++ {
		if strings.EqualFold(strings.TrimSpace(sections[i].Name), CommittedHeader) {
			anchor = i
			break
		}
	}

	pos := len(description)
	for i := anchor + 1; i < len(sections); i++ {
		if sections[i].Level <= sections[anchor].Level {
			pos = sections[i].HeaderStart
			break
		}
	}
	return insertAt(description, pos, entry)
}

// insertAt places block at pos. The text before pos is padded to end in a
// blank line (a single newline when a list item continues a list) and a blank
// line separates the block from any text that follows.
func insertAt(text string, pos int, block string) string {
	before, after := text[:pos], text[pos:]

	var b strings.Builder
	b.WriteString(before)
	if before != "" {
		switch {
		case strings.HasSuffix(before, "\n\n"):
		case strings.HasSuffix(before, "\n") && continuesList(before, block):
		case strings.HasSuffix(before, "\n"):
			b.WriteString("\n")
		default:
			b.WriteString("\n\n")
		}
	}
	b.WriteString(block)
	b.WriteString("\n")
	if after != "" {
		b.WriteString("\n")
		b.WriteString(after)
	}
	return b.String()
}

var listItemRe = regexp.MustCompile(`^\s*[-*+] `)

// continuesList reports whether block is a list item following a list item.
func continuesList(before, block string) bool {
	trimmed := strings.TrimRight(before, "\n")
	last := trimmed[strings.LastIndex(trimmed, "\n")+1:]
	return listItemRe.MatchString(last) && listItemRe.MatchString(block)
}

var (
	headingPrefixRe = regexp.MustCompile(`^#{1,6}(?:[ \t]+|$)`)
	listPrefixRe    = regexp.MustCompile(`^[-*+][ \t]+(\[[ xX]\][ \t]+)?`)
)

// MilestoneEntry formats a drafted milestone body as an unchecked checklist
// item. The first non-empty line names the milestone (heading or list markup
// removed); later lines become indented detail. name is "" for an empty body.
func MilestoneEntry(body string) (name, entry string) {
	lines := strings.Split(strings.ReplaceAll(strings.TrimSpace(body), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", ""
	}

	name = strings.TrimSpace(lines[0])
	name = headingPrefixRe.ReplaceAllString(name, "")
	name = listPrefixRe.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}

	var b strings.Builder
	b.WriteString("- [ ] ")
	b.WriteString(name)
	rest := strings.Trim(strings.Join(lines[1:], "\n"), "\n")
	if strings.TrimSpace(rest) != "" {
		for _, line := range strings.Split(rest, "\n") {
			b.WriteString("\n")
			if strings.TrimSpace(line) != "" {
				b.WriteString("  ")
				b.WriteString(strings.TrimRight(line, " \t"))
			}
		}
	}
	return name, b.String()
}
