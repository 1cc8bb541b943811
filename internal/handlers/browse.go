package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"tablefs/internal/contextutil"
	"tablefs/internal/storage"
)

// BrowseHandler serves a read-only HTML view of the entry tree: folder
// listings with links, and file content rendered as markdown.
type BrowseHandler struct {
	store    storage.EntryStore
	markdown goldmark.Markdown
	dirTmpl  *template.Template
	fileTmpl *template.Template
}

type dirPageData struct {
	ParentID int64
	Entries  []storage.ListItem
}

type filePageData struct {
	ID      int64
	Name    string
	Content template.HTML
}

var dirTemplate = template.Must(template.New("dir").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>tablefs — folder {{.ParentID}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
           margin: 0 auto; padding: 2rem; max-width: 700px; line-height: 1.6;
           background: #050b18; color: #e4ecff; }
    a { color: #60a5fa; text-decoration: none; }
    a:hover { text-decoration: underline; }
    ul { list-style: none; padding-left: 0; }
    li { padding: 0.35rem 0; border-bottom: 1px solid rgba(148, 163, 184, 0.15); }
    .kind { color: #94a3b8; font-size: 0.85rem; margin-right: 0.75rem; }
    .meta { color: #94a3b8; font-size: 0.9rem; }
  </style>
</head>
<body>
  <h1>Folder {{.ParentID}}</h1>
  {{if .Entries}}
  <ul>
    {{range .Entries}}
    <li>
      {{if .IsFolder}}<span class="kind">dir</span><a href="/browse?parent={{.ID}}">{{.Name}}</a>
      {{else}}<span class="kind">file</span><a href="/browse/file/{{.ID}}">{{.Name}}</a>{{end}}
      <span class="meta">&middot; modified {{.ModifiedAt.Format "2006-01-02 15:04"}}</span>
    </li>
    {{end}}
  </ul>
  {{else}}
  <p class="meta">This folder is empty.</p>
  {{end}}
  <p><a href="/browse">Back to root</a></p>
</body>
</html>`))

var fileTemplate = template.Must(template.New("file").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Name}} — tablefs</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
           margin: 0 auto; padding: 2rem; max-width: 700px; line-height: 1.7;
           background: #050b18; color: #e4ecff; }
    a { color: #60a5fa; text-decoration: none; }
    article { background: rgba(12, 19, 35, 0.85); border-radius: 12px; padding: 1.5rem;
              border: 1px solid rgba(99, 102, 241, 0.2); }
    pre { background: #0f172a; padding: 1rem; overflow-x: auto; border-radius: 8px; }
    .meta { color: #94a3b8; font-size: 0.9rem; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <p class="meta">Entry {{.ID}}</p>
  <article>{{.Content}}</article>
  <p><a href="/browse">Back to root</a></p>
</body>
</html>`))

// NewBrowseHandler creates a handler for the HTML browse pages.
func NewBrowseHandler(store storage.EntryStore) *BrowseHandler {
	return &BrowseHandler{
		store: store,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		dirTmpl:  dirTemplate,
		fileTmpl: fileTemplate,
	}
}

// ServeDir renders the child listing of a folder. The parent query parameter
// selects the folder; absent means root.
func (h *BrowseHandler) ServeDir(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var parentID int64
	if raw := r.URL.Query().Get("parent"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid parent id", http.StatusBadRequest)
			return
		}
		parentID = id
	}

	entries, err := h.store.List(ctx, parentID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list folder", "parent_id", parentID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.render(w, h.dirTmpl, dirPageData{ParentID: parentID, Entries: entries})
}

// ServeFile renders a file entry's content as markdown.
func (h *BrowseHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	fc, err := h.store.Read(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to read file", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var content string
	if fc.Content != nil {
		content = *fc.Content
	}

	var rendered bytes.Buffer
	if err := h.markdown.Convert([]byte(content), &rendered); err != nil {
		logger.ErrorContext(ctx, "failed to render markdown", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.render(w, h.fileTmpl, filePageData{
		ID:      id,
		Name:    fc.Name,
		Content: template.HTML(rendered.String()),
	})
}

func (h *BrowseHandler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
