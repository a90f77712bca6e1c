// Package prompt assembles the two system segments sent with every chat turn:
// a static block built only from the context cache (eligible for upstream
// prompt caching) and a small dynamic block built from the per-turn working
// context. Both builders are pure.
package prompt

import (
	"fmt"
	"strings"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
)

// Separator joins sections in both blocks.
const Separator = "\n\n---\n\n"

// BuildStatic renders the cacheable block. Sections whose source is empty
// are omitted; the intro, PRD template and rules are always present.
func BuildStatic(c *cache.ContextCache) string {
	sections := []string{SystemIntro}

	if c != nil {
		if c.SDLCSOP != "" {
			sections = append(sections, "## SDLC Process & SOP\n\n"+c.SDLCSOP)
		}
		sections = appendTemplate(sections, "Objective", "objectives", c.ObjectiveTemplate)
		sections = appendTemplate(sections, "Epic", "epics", c.EpicTemplate)
		sections = appendTemplate(sections, "Story", "stories", c.StoryTemplate)

		if len(c.ReferenceObjectives) > 0 {
			refs := make([]string, 0, len(c.ReferenceObjectives))
			for _, ref := range c.ReferenceObjectives {
				refs = append(refs, referenceObjective(ref))
			}
			sections = append(sections,
				"## Reference Objectives — Match This Quality and Structure\n\n"+
					"These are completed objectives from this team. Match their depth, structure, and writing style exactly.\n\n"+
					strings.Join(refs, Separator))
		}
	}

	sections = append(sections,
		"## PRD Template\n\nWhen generating a PRD, use this exact structure:\n\n"+PRDTemplate,
		CriticalRules,
	)

	return strings.Join(sections, Separator)
}

func appendTemplate(sections []string, label, plural, body string) []string {
	if body == "" {
		return sections
	}
	return append(sections, fmt.Sprintf("## %s Template\n\nUse this structure when drafting %s:\n\n%s", label, plural, body))
}

func referenceObjective(ref cache.ReferenceObjective) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Reference Objective: \"%s\"\n\n%s", ref.Title, ref.Description)

	if len(ref.Epics) == 0 {
		return b.String()
	}

	b.WriteString("\n\n**Sample Epics:**\n")
	for _, epic := range ref.Epics {
		fmt.Fprintf(&b, "\n#### Epic: \"%s\"\n%s", epic.Name, epic.Description)
		if len(epic.Stories) == 0 {
			continue
		}
		b.WriteString("\n\n**Sample Stories:**\n")
		for _, s := range epic.Stories {
			fmt.Fprintf(&b, "\n- **%s** (%s pts)\n  %s", s.Name, estimate(s.Estimate), s.Description)
		}
	}
	return b.String()
}

func estimate(e *int) string {
	if e == nil || *e == 0 {
		return "?"
	}
	return fmt.Sprint(*e)
}
