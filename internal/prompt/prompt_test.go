package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
)

func sampleCache() *cache.ContextCache {
	est := 5
	return &cache.ContextCache{
		SDLCSOP:           "Follow the SOP.",
		ObjectiveTemplate: "# OBJECTIVE",
		EpicTemplate:      "# EPIC",
		StoryTemplate:     "# STORY",
		ReferenceObjectives: []cache.ReferenceObjective{
			{
				ID:          15014,
				Title:       "Heritage IRA",
				Description: "Launch IRAs.",
				Epics: []cache.ReferenceEpic{{
					Name:        "Heritage Onboarding Flow",
					Description: "Onboard investors.",
					Stories: []cache.ReferenceStory{
						{Name: "[Onboarding] - Intro screen", Description: "As a user...", Estimate: &est},
						{Name: "[Onboarding] - KYC", Description: "Collect KYC."},
					},
				}},
			},
			{ID: 2, Title: "Second", Description: "Other."},
		},
	}
}

func TestBuildStatic_Deterministic(t *testing.T) {
	c := sampleCache()
	require.Equal(t, BuildStatic(c), BuildStatic(c))
}

func TestBuildStatic_Sections(t *testing.T) {
	out := BuildStatic(sampleCache())

	require.True(t, strings.HasPrefix(out, SystemIntro))
	require.True(t, strings.HasSuffix(out, CriticalRules))
	require.Contains(t, out, "## SDLC Process & SOP\n\nFollow the SOP.")
	require.Contains(t, out, "## Objective Template\n\nUse this structure when drafting objectives:\n\n# OBJECTIVE")
	require.Contains(t, out, "## Story Template\n\nUse this structure when drafting stories:\n\n# STORY")
	require.Contains(t, out, "### Reference Objective: \"Heritage IRA\"\n\nLaunch IRAs.")
	require.Contains(t, out, "\n#### Epic: \"Heritage Onboarding Flow\"\nOnboard investors.")
	require.Contains(t, out, "\n- **[Onboarding] - Intro screen** (5 pts)\n  As a user...")
	require.Contains(t, out, "\n- **[Onboarding] - KYC** (? pts)\n  Collect KYC.")
	require.Contains(t, out, "Launch IRAs."+"\n\n**Sample Epics:**")
	require.Contains(t, out, "## PRD Template\n\nWhen generating a PRD, use this exact structure:\n\n<!-- draft:prd -->")

	// objective, epic, story template order
	require.Less(t, strings.Index(out, "## Objective Template"), strings.Index(out, "## Epic Template"))
	require.Less(t, strings.Index(out, "## Epic Template"), strings.Index(out, "## Story Template"))
}

func TestBuildStatic_OmitsEmptySources(t *testing.T) {
	out := BuildStatic(&cache.ContextCache{})

	require.NotContains(t, out, "## SDLC Process & SOP")
	require.NotContains(t, out, "Template\n\nUse this structure")
	require.NotContains(t, out, "## Reference Objectives")
	require.Equal(t, SystemIntro+Separator+
		"## PRD Template\n\nWhen generating a PRD, use this exact structure:\n\n"+PRDTemplate+Separator+
		CriticalRules, out)
}

func TestCriticalRules_DescribeMarkers(t *testing.T) {
	for _, token := range []string{
		"<!-- draft:story -->",
		"<!-- draft:story epic_id:12345 -->",
		"<!-- draft:epic -->",
		"<!-- draft:objective -->",
		"<!-- draft:prd -->",
		"<!-- draft:milestone -->",
		"<!-- context:epic id:XXXXX -->",
		"- N/A",
	} {
		require.Contains(t, CriticalRules, token)
	}
}

func TestBuildDynamic_EmptyWhenNothingActive(t *testing.T) {
	require.Equal(t, "", BuildDynamic(DynamicInput{}))
	require.Equal(t, "", BuildDynamic(DynamicInput{TranscriptSummary: "   "}))
	require.True(t, DynamicInput{}.Empty())
}

func TestBuildDynamic_OmitsAbsentSections(t *testing.T) {
	out := BuildDynamic(DynamicInput{TranscriptSummary: "**Decisions made:**\n- ship it"})

	require.True(t, strings.HasPrefix(out, "## Meeting Context\n\n"))
	require.NotContains(t, out, Separator)
	require.NotContains(t, out, "## GitHub Repository Context")
	require.NotContains(t, out, "## Active Objective")
	require.NotContains(t, out, "## Active Epic")
}

func TestBuildDynamic_Order(t *testing.T) {
	obj := &plan.Objective{ID: 1, Name: "Heritage IRA", State: "in progress"}
	out := BuildDynamic(DynamicInput{
		Objective:         obj,
		TranscriptSummary: "summary",
		Repos:             []plan.Repo{{FullName: "acme/web"}},
		Epic:              &plan.Epic{ID: 9, Name: "Onboarding"},
	})

	sections := strings.Split(out, Separator)
	require.Len(t, sections, 4)
	require.True(t, strings.HasPrefix(sections[0], "## Meeting Context"))
	require.True(t, strings.HasPrefix(sections[1], "## GitHub Repository Context"))
	require.True(t, strings.HasPrefix(sections[2], "## Active Objective — Current Working Context"))
	require.True(t, strings.HasPrefix(sections[3], "## Active Epic — Focus Work Here"))
	require.Contains(t, sections[3], "**Objective:** Heritage IRA")
	require.Contains(t, sections[3], "`<!-- draft:story epic_id:9 -->`")
}

func TestBuildDynamic_Repos(t *testing.T) {
	out := BuildDynamic(DynamicInput{Repos: []plan.Repo{{
		FullName:    "acme/web",
		Description: "Investor portal",
		Readme:      "# Web",
		OpenPRs:     []plan.PullRequest{{Number: 12, Title: "Fix login", User: "dana"}},
		OpenIssues:  []plan.Issue{{Number: 30, Title: "Slow dashboard"}},
	}}})

	require.Contains(t, out, "**acme/web**\nInvestor portal\n\nREADME (excerpt):\n# Web")
	require.Contains(t, out, "\nOpen PRs (1):\n- #12: Fix login (@dana)")
	require.Contains(t, out, "\nOpen Issues (1):\n- #30: Slow dashboard")

	var prs []plan.PullRequest
	var issues []plan.Issue
	for n := 1; n <= 15; n++ {
		prs = append(prs, plan.PullRequest{Number: n, Title: fmt.Sprintf("PR %d", n), User: "dana"})
		issues = append(issues, plan.Issue{Number: 100 + n, Title: fmt.Sprintf("Issue %d", n)})
	}
	out = BuildDynamic(DynamicInput{Repos: []plan.Repo{{FullName: "acme/api", OpenPRs: prs, OpenIssues: issues}}})

	require.Contains(t, out, "\nOpen PRs (10):\n- #1: PR 1 (@dana)")
	require.Contains(t, out, "- #10: PR 10 (@dana)")
	require.NotContains(t, out, "#11: PR 11")
	require.Contains(t, out, "\nOpen Issues (10):\n- #101: Issue 1")
	require.Contains(t, out, "- #110: Issue 10")
	require.NotContains(t, out, "#111: Issue 11")
	require.Equal(t, 2*MaxRepoItems, strings.Count(out, "\n- #"))
}

func TestBuildDynamic_Objective(t *testing.T) {
	obj := &plan.Objective{
		ID:         15014,
		Name:       "Heritage IRA",
		KeyResults: []plan.KeyResult{{ID: "kr-1", Name: "Investors can open an IRA", Type: "boolean"}},
		Epics: []plan.Epic{{
			ID:      10,
			Name:    "Onboarding",
			State:   "in progress",
			Stories: []plan.StorySummary{{Completed: true}, {}},
		}},
	}
	out := BuildDynamic(DynamicInput{Objective: obj})

	require.Contains(t, out, "**Objective ID:** 15014\n**Name:** Heritage IRA\n**State:** unknown")
	require.Contains(t, out, "**Description:**\n(no description)")
	require.Contains(t, out, "1. [ID: kr-1] Investors can open an IRA — boolean")
	require.Contains(t, out, "- [ID: 10] **Onboarding** (in progress) — 1/2 stories done")
}

func TestBuildDynamic_NoKeyResultsOrEpics(t *testing.T) {
	out := BuildDynamic(DynamicInput{Objective: &plan.Objective{ID: 1, Name: "x"}})

	require.Contains(t, out, "**Key Results / Milestones:**\n(none defined)")
	require.Contains(t, out, "**Current Epics:**\n(no epics yet)")
}

func TestBuildDynamic_KeyResultCap(t *testing.T) {
	obj := &plan.Objective{ID: 1, Name: "x"}
	for i := 0; i < MaxKeyResults+3; i++ {
		obj.KeyResults = append(obj.KeyResults, plan.KeyResult{ID: fmt.Sprint(i), Name: "kr", Type: "boolean"})
	}
	out := BuildDynamic(DynamicInput{Objective: obj})

	require.Contains(t, out, fmt.Sprintf("%d. [ID: %d]", MaxKeyResults, MaxKeyResults-1))
	require.NotContains(t, out, fmt.Sprintf("%d. [ID:", MaxKeyResults+1))
	require.Contains(t, out, "…and 3 more")
}

func TestTranscriptExtraction(t *testing.T) {
	out := TranscriptExtraction("Alice: let's ship")

	require.True(t, strings.HasPrefix(out, "Extract the key product planning signal"))
	require.True(t, strings.HasSuffix(out, "Transcript:\nAlice: let's ship"))
	require.Contains(t, out, "**Open questions raised:**")
}
