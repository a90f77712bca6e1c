package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/llm"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/prompt"
)

// ErrBusy is returned by Send while another reply is outstanding.
var ErrBusy = errors.New("a reply is already in progress")

// InterruptedHint is shown after a cancelled reply.
const InterruptedHint = "Interrupted. (Press Ctrl-C twice while generating to cancel.)"

// Status is the conversation's request status.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusThinking    Status = "thinking"
	StatusInterrupted Status = "interrupted"
	StatusError       Status = "error"
)

// Chatter produces model replies. *llm.Invoker satisfies it.
type Chatter interface {
	Chat(ctx context.Context, in llm.ChatInput) (string, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Transcript is a meeting transcript attached as context. Summary is nil
// while summarization is running.
type Transcript struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Summary *string `json:"summary"`
}

// Conversation is one planning chat: ordered history, attached transcripts
// and repositories, and the focus held by its Handler.
type Conversation struct {
	chatter Chatter
	handler *Handler
	logger  *log.Logger

	mu          sync.Mutex
	messages    []llm.Message
	transcripts []Transcript
	repos       []plan.Repo
	model       string
	status      Status
	lastErr     error
	busy        bool
	// gen counts Resets; a reply that outlives one is dropped.
	gen uint64
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithLogger sets the logger for warnings.
func WithLogger(l *log.Logger) ConversationOption {
	return func(c *Conversation) { c.logger = l }
}

// WithModel sets the initial model.
func WithModel(m string) ConversationOption {
	return func(c *Conversation) { c.model = llm.ResolveModel(m, llm.DefaultModel) }
}

// NewConversation creates an idle conversation.
func NewConversation(chatter Chatter, handler *Handler, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		chatter: chatter,
		handler: handler,
		logger:  log.Default(),
		model:   llm.DefaultModel,
		status:  StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handler returns the draft handler bound to this conversation.
func (c *Conversation) Handler() *Handler { return c.handler }

// Send appends text as a user turn and asks the model for a reply. The user
// turn is rolled back when the call fails or ctx is cancelled; cancellation
// sets StatusInterrupted and returns an INTERRUPTED error. A context marker
// in the reply activates its epic; failing to load it is only logged.
func (c *Conversation) Send(ctx context.Context, text string) (*marker.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewInvalidRequest("message is empty")
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.busy = true
	gen := c.gen
	prev := len(c.messages)
	c.messages = append(c.messages, llm.Message{Role: llm.RoleUser, Content: text})
	in := llm.ChatInput{
		History: append([]llm.Message(nil), c.messages...),
		Model:   c.model,
		Dynamic: c.dynamicLocked(),
	}
	c.status = StatusThinking
	c.lastErr = nil
	c.mu.Unlock()

	raw, err := c.chatter.Chat(ctx, in)

	c.mu.Lock()
	c.busy = false
	current := c.gen == gen
	if err != nil {
		if current {
			c.messages = c.messages[:prev]
		}
		if ctx.Err() != nil || apperrors.Is(err, apperrors.ErrInterrupted) {
			err = apperrors.NewInterrupted()
			c.status = StatusInterrupted
		} else {
			c.status = StatusError
		}
		c.lastErr = err
		c.mu.Unlock()
		return nil, err
	}
	reply := marker.Parse(raw)
	if current {
		c.messages = append(c.messages, llm.Message{Role: llm.RoleAssistant, Content: reply.Display})
	}
	c.status = StatusIdle
	c.mu.Unlock()

	if reply.Context != nil && c.handler != nil {
		if _, err := c.handler.ApplyContext(ctx, reply.Context); err != nil {
			c.logger.Printf("warning: failed to load epic %d context: %v", reply.Context.ID, err)
		}
	}
	return &reply, nil
}

// Status returns the request status and the last error, if any.
func (c *Conversation) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastErr
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.messages...)
}

// Reset clears the history. Transcripts, repositories and focus are kept.
// A reply still in flight is returned to its caller but not recorded.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.messages = nil
	c.status = StatusIdle
	c.lastErr = nil
}

// Model returns the model used for the next turn.
func (c *Conversation) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel switches the model for later turns.
func (c *Conversation) SetModel(m string) error {
	if !slices.Contains(llm.AllowedModels, m) {
		return apperrors.NewInvalidField("model", fmt.Sprintf("%q is not an allowed model", m))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = m
	return nil
}

// AddTranscript attaches a transcript and summarizes it. The entry is
// visible (unsummarized) while the summary runs and is removed if it fails.
func (c *Conversation) AddTranscript(ctx context.Context, name, text string) (Transcript, error) {
	if strings.TrimSpace(text) == "" {
		return Transcript{}, apperrors.NewInvalidField("transcript", "is required")
	}
	if strings.TrimSpace(name) == "" {
		name = "Transcript"
	}

	c.mu.Lock()
	t := Transcript{ID: newID(), Name: name}
	c.transcripts = append(c.transcripts, t)
	c.mu.Unlock()

	summary, err := c.chatter.Summarize(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.transcriptIndexLocked(t.ID)
	if err != nil {
		if i >= 0 {
			c.transcripts = append(c.transcripts[:i], c.transcripts[i+1:]...)
		}
		return Transcript{}, err
	}
	t.Summary = &summary
	if i >= 0 {
		c.transcripts[i] = t
	}
	return t, nil
}

// RemoveTranscript detaches a transcript by id.
func (c *Conversation) RemoveTranscript(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.transcriptIndexLocked(id)
	if i < 0 {
		return false
	}
	c.transcripts = append(c.transcripts[:i], c.transcripts[i+1:]...)
	return true
}

// Transcripts returns a copy of the attached transcripts, pending ones included.
func (c *Conversation) Transcripts() []Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transcript(nil), c.transcripts...)
}

// TranscriptSummary combines the attached transcripts in order.
func (c *Conversation) TranscriptSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return combineTranscripts(c.transcripts)
}

func (c *Conversation) transcriptIndexLocked(id string) int {
	for i, t := range c.transcripts {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func combineTranscripts(ts []Transcript) string {
	if len(ts) == 0 {
		return ""
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		summary := "(summarizing…)"
		if t.Summary != nil {
			summary = *t.Summary
		}
		parts[i] = fmt.Sprintf("**Meeting %d: %s**\n\n%s", i+1, t.Name, summary)
	}
	return strings.Join(parts, prompt.Separator)
}

// AddRepo attaches a repository. A repository already attached is rejected.
func (c *Conversation) AddRepo(r plan.Repo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.repos {
		if existing.Key() == r.Key() {
			return apperrors.NewInvalidRequest(fmt.Sprintf("%s is already loaded", r.Key()))
		}
	}
	c.repos = append(c.repos, r)
	return nil
}

// RemoveRepo detaches a repository by "owner/name" (case-insensitive).
func (c *Conversation) RemoveRepo(fullName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(fullName)
	for i, r := range c.repos {
		if r.Key() == key {
			c.repos = append(c.repos[:i], c.repos[i+1:]...)
			return true
		}
	}
	return false
}

// Repos returns a copy of the attached repositories.
func (c *Conversation) Repos() []plan.Repo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]plan.Repo(nil), c.repos...)
}

func (c *Conversation) dynamicLocked() prompt.DynamicInput {
	var snap Snapshot
	if c.handler != nil {
		snap = c.handler.State().Snapshot()
	}
	return prompt.DynamicInput{
		Objective:         snap.Objective,
		Epic:              snap.Epic,
		TranscriptSummary: combineTranscripts(c.transcripts),
		Repos:             append([]plan.Repo(nil), c.repos...),
	}
}

// Starters suggests opening prompts for the current context.
func (c *Conversation) Starters() []string {
	c.mu.Lock()
	in := c.dynamicLocked()
	c.mu.Unlock()
	return Starters(in.Objective, in.TranscriptSummary != "", len(in.Repos) > 0)
}

// Starters picks opening prompts from what is loaded: an objective (with or
// without milestones), a transcript, and repositories.
func Starters(o *plan.Objective, hasTranscript, hasRepos bool) []string {
	hasMilestones := o != nil && len(o.KeyResults) > 0

	switch {
	case o != nil && hasTranscript && hasMilestones:
		return []string{
			"Incorporate the transcript feedback into this objective",
			"Update milestones based on the meeting discussion",
			"What changed or needs to change after the meeting?",
			"Draft epics for the next milestone",
		}
	case o != nil && hasTranscript:
		return []string{
			"Incorporate the transcript feedback into this objective",
			"Draft milestones based on the meeting discussion",
			"What's missing after the meeting?",
			"Review the objective against the transcript decisions",
		}
	case o != nil && hasRepos && hasMilestones:
		return []string{
			"Draft implementation epics for the next milestone",
			"Draft stories for an epic using the repo for technical detail",
			"What's the right way to implement this given the codebase?",
			"What's still missing from this objective?",
		}
	case o != nil && hasRepos:
		return []string{
			"Draft milestones for this objective",
			"Draft implementation epics based on the loaded repo",
			"What open work in the repo relates to this objective?",
			"Draft stories for a new feature",
		}
	case o != nil && hasMilestones:
		return []string{
			"Draft epics for the next milestone",
			"Draft stories for an epic",
			"What's still missing from this objective?",
			"Review milestone progress",
		}
	case o != nil:
		return []string{
			"Draft milestones for this objective",
			"Review this objective and suggest what's missing",
			"Draft epics for a milestone",
			"Draft stories for an epic",
		}
	case hasTranscript:
		return []string{
			"Draft an objective from the loaded transcript",
			"Create a PRD",
			"Review the transcript decisions",
			"Turn meeting notes into a plan",
		}
	case hasRepos:
		// Investigation only until an objective is loaded.
		return []string{
			"What's currently in flight across the loaded repos?",
			"What open issues should be prioritized?",
			"Summarize the state of this codebase",
			"What areas need the most attention?",
		}
	}
	return []string{
		"Draft a new objective",
		"Draft a PRD",
		"I have a feature idea, help me scope it",
		"Turn meeting notes into a plan",
	}
}

// PRDRequest is the follow-up message that turns an objective draft into a PRD.
func PRDRequest(objective string) string {
	return "Create a PRD for the following objective. Use the PRD template exactly, filling every section with as much concrete detail as the objective provides. Surface anything ambiguous as an Open Question rather than guessing." +
		prompt.Separator + strings.TrimSpace(objective)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
