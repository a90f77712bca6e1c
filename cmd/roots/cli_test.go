package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	"github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/llm"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/session"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

// shortcutAPI is a minimal Shortcut workspace.
type shortcutAPI struct {
	mu    sync.Mutex
	posts map[string]map[string]any
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *shortcutAPI) handler() http.Handler {
	names := map[int64]string{15014: "Heritage IRA", 42: "Checkout", 777: "Statements"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"content_markdown": "doc " + r.PathValue("id")})
	})
	mux.HandleFunc("GET /objectives/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		name, ok := names[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"id": id, "name": name, "state": "in progress", "description": "# SUMMARY\ntext", "key_results": []any{}})
	})
	mux.HandleFunc("GET /objectives/{id}/epics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 10, "name": "Onboarding", "completed": true},
			{"id": 11, "name": "Funding", "state": "in progress"},
		})
	})
	mux.HandleFunc("GET /epics/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		writeJSON(w, map[string]any{"id": id, "name": "Funding", "state": "in progress"})
	})
	mux.HandleFunc("GET /epics/{id}/stories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"id": 1, "name": "S1"}})
	})
	mux.HandleFunc("GET /workflows", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"states": []map[string]any{{"id": 501, "name": "Ready", "type": "unstarted"}}}})
	})
	mux.HandleFunc("POST /stories", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.posts["stories"] = body
		s.mu.Unlock()
		writeJSON(w, map[string]any{"id": 900, "name": body["name"]})
	})
	return mux
}

func (s *shortcutAPI) posted(kind string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[kind]
}

// scriptedCompleter returns replies in order. A nil started channel means
// replies are immediate; otherwise Complete signals started and waits for
// ctx to end.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	reqs    []llm.Request
	started chan struct{}
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	var reply string
	if len(s.replies) > 0 {
		reply, s.replies = s.replies[0], s.replies[1:]
	}
	s.mu.Unlock()

	if s.started != nil {
		close(s.started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, nil
}

type staticRepos struct{}

func (staticRepos) RepoContext(_ context.Context, owner, name string) (*plan.Repo, error) {
	return &plan.Repo{Owner: owner, Name: name, FullName: owner + "/" + name, OpenPRs: []plan.PullRequest{}, OpenIssues: []plan.Issue{}}, nil
}

type testCLI struct {
	env       *env
	api       *shortcutAPI
	completer *scriptedCompleter
}

func setupCLI(t *testing.T) *testCLI {
	t.Helper()
	api := &shortcutAPI{posts: map[string]map[string]any{}}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	logger := log.New(io.Discard, "", 0)
	completer := &scriptedCompleter{}
	return &testCLI{
		env: &env{
			store:     config.NewStore(t.TempDir()),
			logger:    logger,
			shortcut:  shortcut.New("tok", shortcut.WithBaseURL(srv.URL), shortcut.WithLogger(logger)),
			repos:     staticRepos{},
			completer: completer,
		},
		api:       api,
		completer: completer,
	}
}

// run executes the CLI with stdin and returns stdout.
func (tc *testCLI) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(tc.env)
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"roots"}, args...))
	return out.String(), err
}

func (tc *testCLI) writeCache(t *testing.T) {
	t.Helper()
	workflow := int64(501)
	c := &cache.ContextCache{RefreshedAt: time.Now().UTC(), DefaultWorkflowStateID: &workflow, ReferenceObjectives: []cache.ReferenceObjective{}}
	if err := config.WriteJSONAtomic(tc.env.store.CachePath(), c); err != nil {
		t.Fatalf("failed to write cache: %v", err)
	}
}

// TestFormatError tests the "[CODE] message" rendering.
func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"app error", errors.NewInvalidRequest("Invalid objective ID"), "[INVALID_REQUEST] Invalid objective ID"},
		{"config", errors.NewConfig("SHORTCUT_API_TOKEN is not set"), "[CONFIG_ERROR] SHORTCUT_API_TOKEN is not set"},
		{"plain", io.EOF, "EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatError(tt.err); got != tt.want {
				t.Errorf("formatError() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestLoadDotEnv tests that the base-dir .env is loaded without overriding
// variables already set.
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "ROOTS_TEST_DOTENV_NEW=from-file\nROOTS_TEST_DOTENV_SET=from-file\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("ROOTS_TEST_DOTENV_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("ROOTS_TEST_DOTENV_NEW") })

	if err := loadDotEnv(dir); err != nil {
		t.Fatalf("loadDotEnv failed: %v", err)
	}
	if got := os.Getenv("ROOTS_TEST_DOTENV_NEW"); got != "from-file" {
		t.Errorf("ROOTS_TEST_DOTENV_NEW = %q, want from-file", got)
	}
	if got := os.Getenv("ROOTS_TEST_DOTENV_SET"); got != "from-env" {
		t.Errorf("ROOTS_TEST_DOTENV_SET = %q, want from-env", got)
	}

	if err := loadDotEnv(t.TempDir()); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

// TestCLIStatusAndRefresh tests status before and after refresh.
func TestCLIStatusAndRefresh(t *testing.T) {
	tc := setupCLI(t)

	out, err := tc.run(t, "", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var status cache.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if status.Exists || !status.IsStale {
		t.Errorf("status = %+v, want absent and stale", status)
	}

	out, err = tc.run(t, "", "refresh")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	var refreshed refreshOutput
	if err := json.Unmarshal([]byte(out), &refreshed); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if !refreshed.Exists || refreshed.IsStale {
		t.Errorf("refresh status = %+v, want fresh", refreshed.Status)
	}
	if len(refreshed.ReferenceObjectives) != 1 || refreshed.ReferenceObjectives[0] != "Heritage IRA" {
		t.Errorf("reference objectives = %v, want [Heritage IRA]", refreshed.ReferenceObjectives)
	}
	if refreshed.DefaultWorkflowStateID == nil || *refreshed.DefaultWorkflowStateID != 501 {
		t.Errorf("default workflow state = %v, want 501", refreshed.DefaultWorkflowStateID)
	}
}

// TestCLIReference tests the reference subcommands.
func TestCLIReference(t *testing.T) {
	tc := setupCLI(t)

	t.Run("add by url", func(t *testing.T) {
		out, err := tc.run(t, "", "reference", "add", "https://app.shortcut.com/roots/objective/777")
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		var v cache.LibraryView
		if err := json.Unmarshal([]byte(out), &v); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if !v.Changed || len(v.ReferenceObjectiveIDs) != 2 || v.ReferenceObjectiveIDs[1] != 777 {
			t.Errorf("view = %+v", v)
		}
	})

	t.Run("remove", func(t *testing.T) {
		out, err := tc.run(t, "", "reference", "remove", "15014")
		if err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		var v cache.LibraryView
		if err := json.Unmarshal([]byte(out), &v); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if len(v.References) != 1 || v.References[0].Name == nil || *v.References[0].Name != "Statements" {
			t.Errorf("references = %+v", v.References)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := tc.run(t, "", "reference", "add")
		if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
			t.Errorf("err = %v, want INVALID_REQUEST", err)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := tc.run(t, "", "reference", "remove", "abc")
		if err == nil || !strings.Contains(err.Error(), "Invalid objective ID") {
			t.Errorf("err = %v, want invalid objective ID", err)
		}
	})
}

// TestCLIPrompt tests the prompt preview.
func TestCLIPrompt(t *testing.T) {
	tc := setupCLI(t)

	_, err := tc.run(t, "", "prompt", "--part=static")
	if err == nil || !strings.Contains(err.Error(), "[CONFIG_ERROR]") {
		t.Fatalf("static without cache: err = %v, want CONFIG_ERROR", err)
	}

	out, err := tc.run(t, "", "prompt", "--part=dynamic", "--objective=42", "--epic=11", "--repo=acme/api", "--transcript-summary=Decided on IRA.")
	if err != nil {
		t.Fatalf("dynamic preview failed: %v", err)
	}
	var p promptOutput
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	for _, want := range []string{"Decided on IRA.", "acme/api", "Checkout", "<!-- draft:story epic_id:11 -->"} {
		if !strings.Contains(p.Dynamic, want) {
			t.Errorf("dynamic block missing %q:\n%s", want, p.Dynamic)
		}
	}
	if p.Static != "" {
		t.Error("static block should be omitted for --part=dynamic")
	}

	if _, err := tc.run(t, "", "prompt", "--part=all"); err == nil {
		t.Error("expected error for --part=all")
	}
}

// TestCLIScan tests scanning a reply from stdin.
func TestCLIScan(t *testing.T) {
	tc := setupCLI(t)

	reply := "Here you go.\n\n<!-- draft:story epic_id:12 -->\n## Fund account\nBody\n<!-- draft:prd -->\n# PRD\n<!-- context:epic id:12 -->"
	out, err := tc.run(t, reply, "scan")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	var v struct {
		Segments []struct {
			Kind  string `json:"kind"`
			Draft *struct {
				Kind      string `json:"kind"`
				Title     string `json:"title"`
				EpicID    *int64 `json:"epic_id"`
				Creatable bool   `json:"creatable"`
			} `json:"draft"`
		} `json:"segments"`
		Context *struct {
			ID int64 `json:"id"`
		} `json:"context"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(v.Segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(v.Segments))
	}
	story := v.Segments[1].Draft
	if story == nil || story.Title != "Fund account" || story.EpicID == nil || *story.EpicID != 12 || !story.Creatable {
		t.Errorf("story draft = %+v", story)
	}
	if prd := v.Segments[2].Draft; prd == nil || prd.Creatable {
		t.Errorf("prd draft = %+v, want not creatable", prd)
	}
	if v.Context == nil || v.Context.ID != 12 {
		t.Errorf("context = %+v", v.Context)
	}

	if _, err := tc.run(t, "   ", "scan"); err == nil {
		t.Error("expected error for empty reply")
	}
}

func newTestREPL(tc *testCLI, out io.Writer) *repl {
	workflow := int64(501)
	handler := session.NewHandler(tc.env.shortcut, session.NewState(), session.WithDefaultWorkflowState(&workflow))
	conv := session.NewConversation(tc.env.invoker(config.DefaultConfig()), handler, session.WithLogger(tc.env.logger))
	return newREPL(conv, tc.env.shortcut, tc.env.repos, out)
}

// TestCLIChat tests a scripted chat session that loads an objective and
// creates a drafted story.
func TestCLIChat(t *testing.T) {
	tc := setupCLI(t)
	tc.writeCache(t)
	tc.completer.replies = []string{
		"Story below.\n\n<!-- draft:story -->\n## Link bank account\nAs an investor...",
	}

	script := strings.Join([]string{
		"/objective 42",
		"Draft a story for funding",
		"/create 1",
		"/create 2",
		"/bogus",
		"/quit",
	}, "\n")
	out, err := tc.run(t, script, "chat", "--model=claude-sonnet-4-6")
	if err != nil {
		t.Fatalf("chat failed: %v\nOutput: %s", err, out)
	}

	for _, want := range []string{
		"Loaded objective #42: Checkout (2 epics, 0 milestones)",
		"[1] Story draft: Link bank account",
		"Created Story #900: Link bank account",
		"[INVALID_REQUEST] `draft` must be between 1 and 1",
		"unknown command /bogus",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	story := tc.api.posted("stories")
	if story == nil {
		t.Fatal("no story was posted")
	}
	// First open epic of the loaded objective.
	if story["epic_id"] != float64(11) {
		t.Errorf("epic_id = %v, want 11", story["epic_id"])
	}
	if story["workflow_state_id"] != float64(501) {
		t.Errorf("workflow_state_id = %v, want 501", story["workflow_state_id"])
	}

	if len(tc.completer.reqs) != 1 {
		t.Fatalf("completion requests = %d, want 1", len(tc.completer.reqs))
	}
	req := tc.completer.reqs[0]
	if req.Model != llm.ModelSonnet {
		t.Errorf("model = %s, want %s", req.Model, llm.ModelSonnet)
	}
	if len(req.System) != 2 || !strings.Contains(req.System[1].Text, "Checkout") {
		t.Errorf("dynamic block should carry the loaded objective: %+v", req.System)
	}
}

// TestCLIChatWithoutCache tests that a chat turn without a cache reports the
// config error and leaves no history.
func TestCLIChatWithoutCache(t *testing.T) {
	tc := setupCLI(t)

	var out bytes.Buffer
	r := newTestREPL(tc, &out)
	r.handle(context.Background(), "hello")

	if !strings.Contains(out.String(), "[CONFIG_ERROR]") {
		t.Errorf("output = %q, want CONFIG_ERROR", out.String())
	}
	if n := len(r.conv.Messages()); n != 0 {
		t.Errorf("messages = %d, want 0 after rollback", n)
	}
}

// TestREPLInterrupt tests that two interrupts cancel the in-flight reply.
func TestREPLInterrupt(t *testing.T) {
	tc := setupCLI(t)
	tc.writeCache(t)
	tc.completer.started = make(chan struct{})

	var out syncBuffer
	r := newTestREPL(tc, &out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.handle(context.Background(), "long question")
	}()

	<-tc.completer.started
	r.interrupt()
	r.interrupt()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reply was not interrupted")
	}

	got := out.String()
	if !strings.Contains(got, "Press Ctrl-C again") {
		t.Errorf("first interrupt should prompt for a second: %q", got)
	}
	if !strings.Contains(got, session.InterruptedHint) {
		t.Errorf("output missing interrupted hint: %q", got)
	}
	if status, _ := r.conv.Status(); status != session.StatusInterrupted {
		t.Errorf("status = %s, want interrupted", status)
	}
	if n := len(r.conv.Messages()); n != 0 {
		t.Errorf("messages = %d, want 0 after rollback", n)
	}

	out.Reset()
	r.interrupt()
	if !strings.Contains(out.String(), "Type /quit") {
		t.Errorf("idle interrupt = %q, want quit hint", out.String())
	}
}

// TestREPLCommands tests context commands that need no model.
func TestREPLCommands(t *testing.T) {
	tc := setupCLI(t)

	var out bytes.Buffer
	r := newTestREPL(tc, &out)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"/epic 11", "Focused on epic #11: Funding"},
		{"/repo https://github.com/acme/api.git", "Loaded acme/api (0 open PRs, 0 open issues)"},
		{"/repo acme/api", "[INVALID_REQUEST]"},
		{"/model claude-haiku-4-5-20251001", "Model: claude-haiku-4-5-20251001"},
		{"/model gpt", "[INVALID_REQUEST]"},
		{"/create", "No drafts in the last reply"},
		{"/prd", "Nothing to turn into a PRD"},
		{"/clear epic", "Cleared."},
		{"/clear everything", "[INVALID_REQUEST]"},
		{"/starters", "What's currently in flight across the loaded repos?"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			if quit := r.handle(ctx, tt.line); quit {
				t.Fatal("unexpected quit")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}

	if snap := r.conv.Handler().State().Snapshot(); snap.Epic != nil {
		t.Errorf("epic should be cleared, got %+v", snap.Epic)
	}
	if !r.handle(ctx, "/exit") {
		t.Error("/exit should end the session")
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
