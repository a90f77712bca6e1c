// Package marker implements the inline HTML-comment protocol the model uses to
// mark structured output inside a free-text reply.
//
// Two tokens are recognized:
//
//	<!-- draft:KIND -->                  KIND ∈ story, epic, objective, prd, milestone
//	<!-- draft:story epic_id:12345 -->   story routed to an explicit epic
//	<!-- context:epic id:12345 -->       activate an existing epic
//
// Whitespace around the colon-delimited attribute is tolerated; attribute
// values are runs of digits. Any other "draft:" kind is not a marker and stays
// literal prose.
package marker

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is a draft artifact kind.
type Kind string

const (
	KindStory     Kind = "story"
	KindEpic      Kind = "epic"
	KindObjective Kind = "objective"
	KindPRD       Kind = "prd"
	KindMilestone Kind = "milestone"
)

// Label is the display name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindStory:
		return "Story"
	case KindEpic:
		return "Epic"
	case KindObjective:
		return "Objective"
	case KindPRD:
		return "PRD"
	case KindMilestone:
		return "Milestone"
	default:
		return "Draft"
	}
}

var (
	draftRe   = regexp.MustCompile(`<!--\s*draft:(story|epic|objective|prd|milestone)(?:\s+epic_id\s*:\s*(\d+))?\s*-->`)
	contextRe = regexp.MustCompile(`<!--\s*context:epic\s+id\s*:\s*(\d+)\s*-->`)

	// stripDraftRe also eats the whitespace after a marker so the body starts at its heading.
	stripDraftRe = regexp.MustCompile(draftRe.String() + `\s*`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*\r?$`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// SegmentKind tags a segment of a scanned reply.
type SegmentKind string

const (
	SegmentProse SegmentKind = "prose"
	SegmentDraft SegmentKind = "draft"
)

// Draft is a model-proposed artifact not yet persisted.
type Draft struct {
	Kind Kind `json:"kind"`
	// Raw is the block text including its opening marker.
	Raw string `json:"raw"`
	// EpicID is the explicit routing attribute of a story marker.
	EpicID *int64 `json:"epic_id,omitempty"`
}

// Segment is one run of a reply. Text is the exact substring of the input.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	Text  string      `json:"text"`
	Draft *Draft      `json:"draft,omitempty"`
}

// ContextSignal asks the client to activate an existing epic.
type ContextSignal struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// Scan splits a complete reply into segments. Each draft marker opens a block
// that runs to just before the next draft marker or the end of input. Text
// before the first marker is a prose segment when non-empty. Concatenating
// the segment texts reproduces reply exactly.
func Scan(reply string) []Segment {
	locs := draftRe.FindAllStringSubmatchIndex(reply, -1)
	if len(locs) == 0 {
		return []Segment{{Kind: SegmentProse, Text: reply}}
	}

	segments := make([]Segment, 0, len(locs)+1)
	if locs[0][0] > 0 {
		segments = append(segments, Segment{Kind: SegmentProse, Text: reply[:locs[0][0]]})
	}

	for i, loc := range locs {
		end := len(reply)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		raw := reply[loc[0]:end]

		d := &Draft{Kind: Kind(reply[loc[2]:loc[3]]), Raw: raw}
		if loc[4] >= 0 {
			if id, err := strconv.ParseInt(reply[loc[4]:loc[5]], 10, 64); err == nil {
				d.EpicID = &id
			}
		}
		segments = append(segments, Segment{Kind: SegmentDraft, Text: raw, Draft: d})
	}

	return segments
}

// Drafts returns only the draft segments' drafts, in order.
func Drafts(segments []Segment) []*Draft {
	var out []*Draft
	for _, s := range segments {
		if s.Draft != nil {
			out = append(out, s.Draft)
		}
	}
	return out
}

// Body returns the draft text with draft markers removed, trimmed.
func Body(d *Draft) string {
	return strings.TrimSpace(stripDraftRe.ReplaceAllString(d.Raw, ""))
}

// Title returns the first heading of the body, or "Untitled <Label>".
func Title(d *Draft) string {
	if m := headingRe.FindStringSubmatch(Body(d)); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	return "Untitled " + d.Kind.Label()
}

// ExtractContext finds the first context marker. Every occurrence is stripped
// from the returned display text, runs of three or more newlines collapse to
// one blank line, and the result is trimmed. Without a marker the reply is
// returned unchanged and sig is nil.
func ExtractContext(reply string) (display string, sig *ContextSignal) {
	m := contextRe.FindStringSubmatch(reply)
	if m == nil {
		return reply, nil
	}

	if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
		sig = &ContextSignal{Kind: "epic", ID: id}
	}

	display = contextRe.ReplaceAllString(reply, "")
	display = blankRunRe.ReplaceAllString(display, "\n\n")
	return strings.TrimSpace(display), sig
}

// Reply is a fully parsed model reply.
type Reply struct {
	Display  string         `json:"display"`
	Segments []Segment      `json:"segments"`
	Context  *ContextSignal `json:"context,omitempty"`
}

// Parse strips the context marker and scans the remaining display text.
func Parse(reply string) Reply {
	display, sig := ExtractContext(reply)
	return Reply{Display: display, Segments: Scan(display), Context: sig}
}
