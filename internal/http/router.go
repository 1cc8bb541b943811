package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tablefs/internal/dispatch"
	"tablefs/internal/handlers"
	"tablefs/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Store      storage.EntryStore
	WriteToken string
	InstanceID string
}

// NewRouter creates the HTTP router: the POST action endpoint, the read-only
// HTML browser and a health probe.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	dispatcher := dispatch.New(deps.Store)
	envelope := handlers.NewEnvelopeHandler(dispatcher, deps.WriteToken, deps.InstanceID)
	browse := handlers.NewBrowseHandler(deps.Store)

	// Registered for all methods so the handler's own method check can
	// answer non-POST with a plain 405 instead of an envelope.
	r.Handle("/api/fs", envelope)

	r.Get("/browse", browse.ServeDir)
	r.Get("/browse/file/{id}", browse.ServeFile)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
