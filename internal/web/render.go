package web

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Viktorfalkner/roots-product-helper/internal/errors"
	"github.com/Viktorfalkner/roots-product-helper/internal/marker"
)

// md renders GitHub-flavored markdown; raw HTML (including marker comments)
// is omitted from the output.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// DraftView is a draft as shown on a card.
type DraftView struct {
	Kind   marker.Kind `json:"kind"`
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	EpicID *int64      `json:"epic_id,omitempty"`
	// Creatable is false for kinds that are exported rather than created.
	Creatable bool `json:"creatable"`
}

// SegmentView is one segment of a reply with its rendered HTML.
type SegmentView struct {
	Kind  marker.SegmentKind `json:"kind"`
	Text  string             `json:"text"`
	HTML  string             `json:"html"`
	Draft *DraftView         `json:"draft,omitempty"`
}

// ReplyView is a parsed reply ready for display.
type ReplyView struct {
	Display  string                `json:"display"`
	Segments []SegmentView         `json:"segments"`
	Context  *marker.ContextSignal `json:"context,omitempty"`
}

// NewReplyView renders every segment of reply.
func NewReplyView(reply marker.Reply) ReplyView {
	v := ReplyView{Display: reply.Display, Context: reply.Context, Segments: make([]SegmentView, len(reply.Segments))}
	for i, s := range reply.Segments {
		sv := SegmentView{Kind: s.Kind, Text: s.Text}
		if s.Draft == nil {
			sv.HTML = renderMarkdown(s.Text)
		} else {
			body := marker.Body(s.Draft)
			sv.HTML = renderMarkdown(body)
			sv.Draft = &DraftView{
				Kind:      s.Draft.Kind,
				Title:     marker.Title(s.Draft),
				Body:      body,
				EpicID:    s.Draft.EpicID,
				Creatable: s.Draft.Kind != marker.KindPRD,
			}
		}
		v.Segments[i] = sv
	}
	return v
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes {"error":{code,message,status}}. Server-side failures
// are logged.
func renderError(w http.ResponseWriter, logger *log.Logger, route string, err error) {
	aErr := errors.As(err)
	if aErr.Status >= 500 {
		logger.Printf("%s error: %v", route, err)
	}
	renderJSON(w, aErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(aErr.Code),
			"message": aErr.Message,
			"status":  aErr.Status,
		},
	})
}
