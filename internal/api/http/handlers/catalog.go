package handlers

import (
	"net/http"

	"github.com/catalogd/registry/internal/registry"
)

// CatalogHandlers serves the registry root document
type CatalogHandlers struct {
	catalog *registry.Catalog
	base    BaseURL
}

// NewCatalogHandlers creates catalog handlers
func NewCatalogHandlers(catalog *registry.Catalog, base BaseURL) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, base: base}
}

// GetCatalog handles GET /registry/[?inline]
func (h *CatalogHandlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	doc, err := h.catalog.Build(r.Context(), h.base(r), flag(r, "inline"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// MergeCatalog handles POST /registry/ with a document holding any of the
// kind collections
func (h *CatalogHandlers) MergeCatalog(w http.ResponseWriter, r *http.Request) {
	data, err := readJSON(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := h.catalog.Merge(r.Context(), h.base(r), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
