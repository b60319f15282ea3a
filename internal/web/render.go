package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/nutrition"
)

// EntryView is an entry as served by GET /entries/{id}, with the amino
// recommendation pre-rendered from markdown.
type EntryView struct {
	nutrition.Entry
	AminoRecommendationHTML template.HTML `json:"aminoRecommendationHtml,omitempty"`
}

func newEntryView(e *nutrition.Entry) EntryView {
	v := EntryView{Entry: *e}
	if e.AminoRecommendation != nil && strings.TrimSpace(*e.AminoRecommendation) != "" {
		v.AminoRecommendationHTML = renderMarkdown(*e.AminoRecommendation)
	}
	return v
}

// renderError writes a PlateError as a JSON error body. Any other error is
// reported as INTERNAL without its cause.
func renderError(w http.ResponseWriter, err error) {
	var pErr *errors.PlateError
	if !stderrors.As(err, &pErr) {
		pErr = errors.NewInternal(err)
	}

	errorObj := map[string]any{
		"code":    string(pErr.Code),
		"message": pErr.Message,
		"status":  pErr.Status,
	}
	if pErr.Code != errors.ErrInternal && pErr.Details != nil {
		errorObj["details"] = pErr.Details
	}

	renderJSON(w, pErr.Status, map[string]any{"error": errorObj})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
