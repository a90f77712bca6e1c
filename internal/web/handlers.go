package web

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Viktorfalkner/roots-product-helper/internal/cache"
	"github.com/Viktorfalkner/roots-product-helper/internal/config"
	"github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/llm"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
	"github.com/Viktorfalkner/roots-product-helper/internal/plan"
	"github.com/Viktorfalkner/roots-product-helper/internal/prompt"
	"github.com/Viktorfalkner/roots-product-helper/internal/session"
	"github.com/Viktorfalkner/roots-product-helper/internal/shortcut"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 2 << 20

// Tracker is the project tracker surface the API needs.
type Tracker interface {
	session.Tracker
	ObjectiveWithContext(ctx context.Context, id int64) (*plan.Objective, error)
}

// RepoSource fetches repository context.
type RepoSource interface {
	RepoContext(ctx context.Context, owner, name string) (*plan.Repo, error)
}

// Deps are the collaborators behind the API.
type Deps struct {
	Store     *config.Store
	Refresher *cache.Refresher
	Library   *cache.Library
	Chatter   session.Chatter
	Tracker   Tracker
	Repos     RepoSource
	Logger    *log.Logger
}

// Handlers contains the HTTP route handlers.
type Handlers struct {
	Deps
	now func() time.Time
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleContextStatus handles GET /api/context-status.
func (h *Handlers) HandleContextStatus(w http.ResponseWriter, r *http.Request) {
	status, err := cache.StatusAt(h.Store.CachePath(), h.now())
	if err != nil {
		renderError(w, h.Logger, "Context status", err)
		return
	}
	renderJSON(w, http.StatusOK, status)
}

// HandleBootstrap handles POST /api/bootstrap: a full cache refresh.
func (h *Handlers) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	c, err := h.Refresher.Refresh(r.Context())
	if err != nil {
		renderError(w, h.Logger, "Bootstrap", err)
		return
	}
	renderJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		cache.Status
	}{true, c.StatusAt(h.now())})
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
	Model    string        `json:"model"`
	prompt.DynamicInput
}

type chatResponse struct {
	Response string    `json:"response"`
	Reply    ReplyView `json:"reply"`
}

// HandleChat handles POST /api/chat.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, h.Logger, "Chat", err)
		return
	}

	raw, err := h.Chatter.Chat(r.Context(), llm.ChatInput{History: req.Messages, Model: req.Model, Dynamic: req.DynamicInput})
	if err != nil {
		renderError(w, h.Logger, "Chat", err)
		return
	}
	renderJSON(w, http.StatusOK, chatResponse{Response: raw, Reply: NewReplyView(marker.Parse(raw))})
}

// HandleSummarize handles POST /api/summarize-transcript.
func (h *Handlers) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, h.Logger, "Summarize", err)
		return
	}

	summary, err := h.Chatter.Summarize(r.Context(), req.Transcript)
	if err != nil {
		renderError(w, h.Logger, "Summarize", err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// HandleScan handles POST /api/scan: parse a reply without calling the model.
func (h *Handlers) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, h.Logger, "Scan", err)
		return
	}
	renderJSON(w, http.StatusOK, NewReplyView(marker.Parse(req.Text)))
}

// HandleRepo handles GET /api/repo/{owner}/{repo}.
func (h *Handlers) HandleRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := h.Repos.RepoContext(r.Context(), r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		renderError(w, h.Logger, "Repo fetch", err)
		return
	}
	renderJSON(w, http.StatusOK, repo)
}

// HandleObjective handles GET /api/objective/{id}.
func (h *Handlers) HandleObjective(w http.ResponseWriter, r *http.Request) {
	id, err := shortcut.ParseObjectiveID(r.PathValue("id"))
	if err != nil {
		renderError(w, h.Logger, "Objective fetch", err)
		return
	}
	o, err := h.Tracker.ObjectiveWithContext(r.Context(), id)
	if err != nil {
		renderError(w, h.Logger, "Objective fetch", err)
		return
	}
	renderJSON(w, http.StatusOK, o)
}

// HandleEpic handles GET /api/epic/{id}.
func (h *Handlers) HandleEpic(w http.ResponseWriter, r *http.Request) {
	id, err := shortcut.ParseID("id", r.PathValue("id"))
	if err != nil {
		renderError(w, h.Logger, "Epic fetch", err)
		return
	}
	e, err := h.Tracker.GetEpic(r.Context(), id)
	if err != nil {
		renderError(w, h.Logger, "Epic fetch", err)
		return
	}
	renderJSON(w, http.StatusOK, e)
}

type milestoneRequest struct {
	ObjectiveID int64  `json:"objective_id"`
	Name        string `json:"name"`
	Body        string `json:"body"`
}

// HandleCreate handles POST /api/create/{kind}.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	kind := marker.Kind(r.PathValue("kind"))
	route := "Create " + string(kind)
	handler := session.NewHandler(h.Tracker, session.NewState(), session.WithDefaultWorkflowState(h.defaultWorkflowState()))

	var res *session.Result
	var err error
	switch kind {
	case marker.KindStory:
		var req session.StoryRequest
		if err = decodeJSON(w, r, &req); err == nil {
			res, err = handler.CreateStory(r.Context(), req)
		}
	case marker.KindEpic:
		var req session.EpicRequest
		if err = decodeJSON(w, r, &req); err == nil {
			res, err = handler.CreateEpic(r.Context(), req)
		}
	case marker.KindObjective:
		var req session.ObjectiveRequest
		if err = decodeJSON(w, r, &req); err == nil {
			res, err = handler.CreateObjective(r.Context(), req)
		}
	case marker.KindMilestone:
		var req milestoneRequest
		if err = decodeJSON(w, r, &req); err == nil {
			body := req.Body
			if strings.TrimSpace(body) == "" {
				body = req.Name
			}
			res, err = handler.AddMilestone(r.Context(), session.MilestoneRequest{ObjectiveID: req.ObjectiveID, Body: body})
		}
	default:
		err = errors.NewNotFound("draft kind " + strconv.Quote(string(kind)))
	}
	if err != nil {
		renderError(w, h.Logger, route, err)
		return
	}

	renderJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*session.Result
	}{true, res})
}

// defaultWorkflowState reads the cached default state for new stories. An
// absent or unreadable cache leaves it to the tracker.
func (h *Handlers) defaultWorkflowState() *int64 {
	c, err := cache.Load(h.Store.CachePath())
	if err != nil {
		return nil
	}
	return c.DefaultWorkflowStateID
}

// HandleReferenceList handles GET /api/reference-library.
func (h *Handlers) HandleReferenceList(w http.ResponseWriter, r *http.Request) {
	v, err := h.Library.List()
	if err != nil {
		renderError(w, h.Logger, "Reference library", err)
		return
	}
	renderJSON(w, http.StatusOK, v)
}

// HandleReferenceAdd handles POST /api/reference-library/add.
func (h *Handlers) HandleReferenceAdd(w http.ResponseWriter, r *http.Request) {
	h.editReference(w, r, "Reference add", h.Library.Add)
}

// HandleReferenceRemove handles POST /api/reference-library/remove.
func (h *Handlers) HandleReferenceRemove(w http.ResponseWriter, r *http.Request) {
	h.editReference(w, r, "Reference remove", h.Library.Remove)
}

func (h *Handlers) editReference(w http.ResponseWriter, r *http.Request, route string, edit func(context.Context, int64) (*cache.LibraryView, error)) {
	var req struct {
		ObjectiveID json.RawMessage `json:"objective_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, h.Logger, route, err)
		return
	}
	id, err := parseObjectiveParam(req.ObjectiveID)
	if err != nil {
		renderError(w, h.Logger, route, err)
		return
	}

	v, err := edit(r.Context(), id)
	if err != nil {
		renderError(w, h.Logger, route, err)
		return
	}
	renderJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*cache.LibraryView
	}{true, v})
}

// parseObjectiveParam accepts a JSON number or a string holding a number or
// Shortcut URL.
func parseObjectiveParam(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return shortcut.ParseObjectiveID(s)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return errors.NewInvalidRequest("request body too large")
		}
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
