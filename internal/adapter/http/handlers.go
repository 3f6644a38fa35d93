package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tracefold/workbench/internal/service"
)

// Handlers bundles the services the read-only observation API exposes.
// Mutations go through the MCP tool surface, not these endpoints.
type Handlers struct {
	Files *service.FileService
	LSP   *service.LSPService
}

// MountRoutes mounts the observation API under /api/v1.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/lsp/status", h.lspStatus)
		r.Get("/facts", h.listFacts)
		r.Get("/files", h.listFiles)
	})
}

func (h *Handlers) lspStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.LSP.Status())
}

func (h *Handlers) listFacts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	facts, err := h.Files.RecentFacts(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facts)
}

func (h *Handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "."
	}
	entries, err := h.Files.List(r.Context(), dir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
