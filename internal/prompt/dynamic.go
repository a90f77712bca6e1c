package prompt

import (
	"fmt"
	"strings"

	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
)

// MaxKeyResults caps the milestones listed for the active objective.
const MaxKeyResults = 20

// MaxRepoItems caps the open PRs and the open issues listed per repository.
const MaxRepoItems = 10

// DynamicInput is the per-turn working context. Every field is optional.
type DynamicInput struct {
	Objective         *plan.Objective `json:"active_objective,omitempty"`
	TranscriptSummary string          `json:"transcript_summary,omitempty"`
	Repos             []plan.Repo     `json:"active_repos,omitempty"`
	Epic              *plan.Epic      `json:"active_epic,omitempty"`
}

// Empty reports whether no section would be rendered.
func (in DynamicInput) Empty() bool {
	return in.Objective == nil && strings.TrimSpace(in.TranscriptSummary) == "" && len(in.Repos) == 0 && in.Epic == nil
}

// BuildDynamic renders the per-turn block: meeting context, repositories,
// active objective, active epic, in that order. Absent inputs omit their
// section; with nothing active it returns "".
func BuildDynamic(in DynamicInput) string {
	var sections []string

	if s := strings.TrimSpace(in.TranscriptSummary); s != "" {
		sections = append(sections, "## Meeting Context\n\n"+
			"The following was extracted from a scoping meeting transcript. Use it to enrich your output — capture decisions made, fill in detail, and surface open questions that were raised.\n\n"+
			s)
	}

	if len(in.Repos) > 0 {
		repos := make([]string, 0, len(in.Repos))
		for _, r := range in.Repos {
			repos = append(repos, repoSection(r))
		}
		sections = append(sections, "## GitHub Repository Context\n\n"+
			"The following repositories are relevant to this work. Use them to understand existing patterns, what's currently in flight, and avoid duplicating or conflicting with ongoing work.\n\n"+
			strings.Join(repos, "\n\n"))
	}

	if in.Objective != nil {
		sections = append(sections, objectiveSection(in.Objective))
	}

	if in.Epic != nil {
		objectiveName := "unknown"
		if in.Objective != nil && in.Objective.Name != "" {
			objectiveName = in.Objective.Name
		}
		sections = append(sections, fmt.Sprintf("## Active Epic — Focus Work Here\n\n"+
			"Break down work within this specific epic. All story drafts should target it.\n\n"+
			"**Epic ID:** %d\n**Name:** %s\n**Objective:** %s\n\n"+
			"Use this marker on every story draft: `<!-- draft:story epic_id:%d -->`",
			in.Epic.ID, in.Epic.Name, objectiveName, in.Epic.ID))
	}

	return strings.Join(sections, Separator)
}

func repoSection(r plan.Repo) string {
	name := r.FullName
	if name == "" {
		name = r.Owner + "/" + r.Name
	}
	lines := []string{"**" + name + "**"}
	if r.Description != "" {
		lines = append(lines, r.Description)
	}
	if r.Readme != "" {
		lines = append(lines, "\nREADME (excerpt):\n"+r.Readme)
	}
	prs, issues := r.OpenPRs, r.OpenIssues
	if len(prs) > MaxRepoItems {
		prs = prs[:MaxRepoItems]
	}
	if len(issues) > MaxRepoItems {
		issues = issues[:MaxRepoItems]
	}
	if len(prs) > 0 {
		lines = append(lines, fmt.Sprintf("\nOpen PRs (%d):", len(prs)))
		for _, pr := range prs {
			lines = append(lines, fmt.Sprintf("- #%d: %s (@%s)", pr.Number, pr.Title, pr.User))
		}
	}
	if len(issues) > 0 {
		lines = append(lines, fmt.Sprintf("\nOpen Issues (%d):", len(issues)))
		for _, i := range issues {
			lines = append(lines, fmt.Sprintf("- #%d: %s", i.Number, i.Title))
		}
	}
	return strings.Join(lines, "\n")
}

func objectiveSection(o *plan.Objective) string {
	var b strings.Builder
	b.WriteString("## Active Objective — Current Working Context\n\n")
	b.WriteString("You are currently working within this objective. Anchor all epics and stories to it. Do not duplicate what already exists.\n\n")
	fmt.Fprintf(&b, "**Objective ID:** %d\n", o.ID)
	fmt.Fprintf(&b, "**Name:** %s\n", o.Name)
	fmt.Fprintf(&b, "**State:** %s\n\n", orDefault(o.State, "unknown"))
	fmt.Fprintf(&b, "**Description:**\n%s\n\n", orDefault(o.Description, "(no description)"))

	b.WriteString("**Key Results / Milestones:**\n")
	if len(o.KeyResults) == 0 {
		b.WriteString("(none defined)")
	} else {
		shown := o.KeyResults
		if len(shown) > MaxKeyResults {
			shown = shown[:MaxKeyResults]
		}
		lines := make([]string, 0, len(shown)+1)
		for i, kr := range shown {
			lines = append(lines, fmt.Sprintf("%d. [ID: %s] %s — %s", i+1, kr.ID, kr.Name, orDefault(kr.Type, "unknown")))
		}
		if extra := len(o.KeyResults) - len(shown); extra > 0 {
			lines = append(lines, fmt.Sprintf("…and %d more", extra))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n\n**Current Epics:**\n")
	if len(o.Epics) == 0 {
		b.WriteString("(no epics yet)")
	} else {
		lines := make([]string, 0, len(o.Epics))
		for _, e := range o.Epics {
			lines = append(lines, fmt.Sprintf("- [ID: %d] **%s** (%s) — %d/%d stories done",
				e.ID, e.Name, orDefault(e.State, "unknown"), e.StoriesDone(), len(e.Stories)))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
