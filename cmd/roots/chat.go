package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
	"github.com/Viktorfalkner/roots-product-helper/internal/session"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
	"github.com/Viktorfalkner/roots-product-helper/internal/web"
)

const chatHelp = `Commands:
  /objective <id|url>   load an objective with its epics and milestones
  /epic <id>            focus an epic
  /clear [objective|epic|story]
  /repo <owner/repo>    attach a repository
  /transcript <file>    attach and summarize a meeting transcript
  /create [n]           save draft n of the last reply to Shortcut
  /prd [text]           turn the last objective draft (or text) into a PRD
  /model <name>         switch model
  /context              show what is loaded
  /starters             suggest prompts
  /reset                clear the conversation
  /quit                 exit
`

// repl drives a Conversation from line input. Output may be written from the
// signal goroutine and transcript summaries, so writes go through printf.
type repl struct {
	conv    *session.Conversation
	tracker web.Tracker
	repos   web.RepoSource
	tap     *session.DoubleTap

	outMu sync.Mutex
	out   io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc

	drafts  []*marker.Draft
	pending sync.WaitGroup
}

func newREPL(conv *session.Conversation, tracker web.Tracker, repos web.RepoSource, out io.Writer) *repl {
	return &repl{
		conv:    conv,
		tracker: tracker,
		repos:   repos,
		tap:     session.NewDoubleTap(session.DoubleTapWindow),
		out:     out,
	}
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) printError(err error) {
	r.printf("%s\n", formatError(err))
}

// preload applies the context given as flags before the first prompt.
func (r *repl) preload(ctx context.Context, objective, epic string, repos, transcripts []string) error {
	if objective != "" {
		if err := r.loadObjective(ctx, objective); err != nil {
			return err
		}
	}
	if epic != "" {
		if err := r.loadEpic(ctx, epic); err != nil {
			return err
		}
	}
	for _, repo := range repos {
		if err := r.addRepo(ctx, repo); err != nil {
			return err
		}
	}
	for _, path := range transcripts {
		if err := r.addTranscript(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// run reads lines until /quit or EOF, then waits for pending summaries.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.printf("Roots planning session (%s). Type /help for commands.\n", r.conv.Model())
	r.printStarters()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for {
		r.printf("> ")
		if !sc.Scan() {
			break
		}
		if r.handle(ctx, sc.Text()) {
			break
		}
	}
	r.pending.Wait()
	return sc.Err()
}

// handle runs one line of input and reports whether the session should end.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s", chatHelp)
	case "/objective":
		err = r.loadObjective(ctx, arg)
	case "/epic":
		err = r.loadEpic(ctx, arg)
	case "/clear":
		err = r.clear(arg)
	case "/repo":
		err = r.addRepo(ctx, arg)
	case "/transcript":
		err = r.addTranscript(ctx, arg)
	case "/create":
		err = r.create(ctx, arg)
	case "/prd":
		err = r.prd(ctx, arg)
	case "/model":
		if err = r.conv.SetModel(arg); err == nil {
			r.printf("Model: %s\n", arg)
		}
	case "/context":
		r.printContext()
	case "/starters":
		r.printStarters()
	case "/reset":
		r.conv.Reset()
		r.drafts = nil
		r.printf("Conversation cleared.\n")
	default:
		err = errors.NewInvalidRequest(fmt.Sprintf("unknown command %s (try /help)", cmd))
	}
	if err != nil {
		r.printError(err)
	}
	return false
}

// send forwards text to the model. While it runs, a Ctrl-C double tap
// cancels it through interrupt.
func (r *repl) send(ctx context.Context, text string) {
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.tap.Reset()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	reply, err := r.conv.Send(sendCtx, text)

	r.mu.Lock()
	r.cancel = nil
	r.mu.Unlock()

	if err != nil {
		if errors.Is(err, errors.ErrInterrupted) {
			r.printf("\n%s\n", session.InterruptedHint)
			return
		}
		r.printError(err)
		return
	}
	r.printReply(reply)
}

// interrupt handles one SIGINT.
func (r *repl) interrupt() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel == nil {
		r.printf("\nType /quit to exit.\n> ")
		return
	}
	if r.tap.Tap() {
		cancel()
		return
	}
	r.printf("\nPress Ctrl-C again to interrupt the reply.\n")
}

func (r *repl) printReply(reply *marker.Reply) {
	var drafts []*marker.Draft
	for _, s := range reply.Segments {
		if s.Draft == nil {
			if text := strings.TrimSpace(s.Text); text != "" {
				r.printf("\n%s\n", text)
			}
			continue
		}

		d := s.Draft
		drafts = append(drafts, d)
		r.printf("\n[%d] %s draft: %s\n%s\n", len(drafts), d.Kind.Label(), marker.Title(d), marker.Body(d))
		if d.Kind == marker.KindPRD {
			r.printf("(PRDs are exported as markdown, not created.)\n")
		} else {
			r.printf("(/create %d saves it to Shortcut)\n", len(drafts))
		}
	}
	r.drafts = drafts

	if reply.Context != nil {
		if epic := r.conv.Handler().State().Snapshot().Epic; epic != nil && epic.ID == reply.Context.ID {
			r.printf("\nFocused on epic #%d: %s\n", epic.ID, epic.Name)
		}
	}
}

func (r *repl) loadObjective(ctx context.Context, arg string) error {
	id, err := shortcut.ParseObjectiveID(arg)
	if err != nil {
		return err
	}
	o, err := r.tracker.ObjectiveWithContext(ctx, id)
	if err != nil {
		return err
	}
	r.conv.Handler().State().SetObjective(o)
	r.printf("Loaded objective #%d: %s (%d epics, %d milestones)\n", o.ID, o.Name, len(o.Epics), len(o.KeyResults))
	return nil
}

func (r *repl) loadEpic(ctx context.Context, arg string) error {
	id, err := shortcut.ParseID("epic", arg)
	if err != nil {
		return err
	}
	epic, err := r.conv.Handler().ApplyContext(ctx, &marker.ContextSignal{Kind: "epic", ID: id})
	if err != nil {
		return err
	}
	r.printf("Focused on epic #%d: %s\n", epic.ID, epic.Name)
	return nil
}

func (r *repl) clear(arg string) error {
	state := r.conv.Handler().State()
	switch arg {
	case "", "objective":
		state.ClearObjective()
	case "epic":
		state.ClearEpic()
	case "story":
		state.ClearStory()
	default:
		return errors.NewInvalidField("clear", "must be objective, epic or story")
	}
	r.printf("Cleared.\n")
	return nil
}

func (r *repl) addRepo(ctx context.Context, arg string) error {
	repo, err := loadRepo(ctx, r.repos, arg)
	if err != nil {
		return err
	}
	if err := r.conv.AddRepo(*repo); err != nil {
		return err
	}
	r.printf("Loaded %s (%d open PRs, %d open issues)\n", repo.FullName, len(repo.OpenPRs), len(repo.OpenIssues))
	return nil
}

// addTranscript reads the file and summarizes it in the background. The
// summary joins the context of the first turn sent after it completes.
func (r *repl) addTranscript(ctx context.Context, path string) error {
	if path == "" {
		return errors.NewInvalidField("transcript", "file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("cannot read transcript: %v", err))
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	r.printf("Summarizing %s...\n", name)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		t, err := r.conv.AddTranscript(ctx, name, string(data))
		if err != nil {
			r.printf("\nTranscript %s failed: %s\n", name, formatError(err))
			return
		}
		r.printf("\nTranscript %s summarized.\n", t.Name)
	}()
	return nil
}

func (r *repl) create(ctx context.Context, arg string) error {
	if len(r.drafts) == 0 {
		return errors.NewInvalidRequest("No drafts in the last reply")
	}
	n := 1
	if arg != "" {
		var err error
		if n, err = strconv.Atoi(arg); err != nil || n < 1 || n > len(r.drafts) {
			return errors.NewInvalidField("draft", fmt.Sprintf("must be between 1 and %d", len(r.drafts)))
		}
	}

	res, err := r.conv.Handler().Create(ctx, r.drafts[n-1])
	if err != nil {
		return err
	}
	if res.Kind == marker.KindMilestone {
		r.printf("Added milestone %q to objective #%d\n", res.Name, res.ID)
		return nil
	}
	r.printf("Created %s #%d: %s\n", res.Kind.Label(), res.ID, res.Name)
	return nil
}

// prd asks for a PRD built from text, the last objective draft, or the
// active objective's description, in that order.
func (r *repl) prd(ctx context.Context, text string) error {
	if text == "" {
		for _, d := range r.drafts {
			if d.Kind == marker.KindObjective {
				text = marker.Body(d)
				break
			}
		}
	}
	if text == "" {
		if o := r.conv.Handler().State().Snapshot().Objective; o != nil {
			text = "# " + o.Name + "\n\n" + o.Description
		}
	}
	if strings.TrimSpace(text) == "" {
		return errors.NewInvalidRequest("Nothing to turn into a PRD. Draft or load an objective first.")
	}
	r.send(ctx, session.PRDRequest(text))
	return nil
}

func (r *repl) printContext() {
	snap := r.conv.Handler().State().Snapshot()
	r.printf("Model: %s\n", r.conv.Model())
	if snap.Objective != nil {
		r.printf("Objective: #%d %s\n", snap.Objective.ID, snap.Objective.Name)
	}
	if snap.Epic != nil {
		r.printf("Epic: #%d %s\n", snap.Epic.ID, snap.Epic.Name)
	}
	if snap.Story != nil {
		r.printf("Story: #%d %s\n", snap.Story.ID, snap.Story.Name)
	}
	for _, repo := range r.conv.Repos() {
		r.printf("Repo: %s\n", repo.FullName)
	}
	for _, t := range r.conv.Transcripts() {
		status := "summarized"
		if t.Summary == nil {
			status = "summarizing"
		}
		r.printf("Transcript: %s (%s)\n", t.Name, status)
	}
}

func (r *repl) printStarters() {
	r.printf("Try:\n")
	for _, s := range r.conv.Starters() {
		r.printf("  - %s\n", s)
	}
}
