package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/catalogd/registry/internal/api/validation"
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/registry"
)

// Version metadata headers, sent on raw content and redirect responses and
// read from raw uploads
const (
	HeaderID          = "resource-id"
	HeaderDescription = "resource-description"
	HeaderDocs        = "resource-docs"
	HeaderName        = "resource-name"
	HeaderOrigin      = "resource-origin"
	HeaderVersion     = "resource-version"
	HeaderCreatedOn   = "resource-createdon"
	HeaderCreatedBy   = "resource-createdby"
	HeaderModifiedOn  = "resource-modifiedon"
	HeaderModifiedBy  = "resource-modifiedby"
)

// KindHandlers serves one registry kind: its groups, their resources and
// the resource versions.
type KindHandlers[G model.Entity, R model.Versioned] struct {
	groups   *registry.GroupEngine[G, R]
	versions *registry.VersionEngine[R]
	base     BaseURL
}

// NewKindHandlers creates handlers for one kind
func NewKindHandlers[G model.Entity, R model.Versioned](groups *registry.GroupEngine[G, R], versions *registry.VersionEngine[R], base BaseURL) *KindHandlers[G, R] {
	return &KindHandlers[G, R]{
		groups:   groups,
		versions: versions,
		base:     base,
	}
}

// Name returns the kind's URL segment
func (h *KindHandlers[G, R]) Name() string {
	return h.groups.Name()
}

// Routes returns the kind's router, to be mounted at /{kind}
func (h *KindHandlers[G, R]) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListGroups)
	r.Post("/", h.PutGroups)
	r.Put("/", h.PutGroups)
	r.Delete("/", h.DeleteGroups)

	r.Route("/{groupID}", func(r chi.Router) {
		r.Get("/", h.GetGroup)
		r.Put("/", h.PutGroup)
		r.Post("/", h.PutGroup)
		r.Delete("/", h.DeleteGroup)

		r.Route("/"+h.groups.Kind().ResourceName, func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Put("/", h.PutResources)
			r.Post("/", h.PutResources)

			r.Route("/{resourceID}", func(r chi.Router) {
				r.Get("/", h.GetLatestVersion)
				r.Put("/", h.PutResource)
				r.Post("/", h.PostVersion)
				r.Delete("/", h.DeleteResource)

				r.Get("/versions", h.ListVersions)
				r.Post("/versions", h.PostVersion)
				r.Get("/versions/{versionID}", h.GetVersion)
				r.Delete("/versions/{versionID}", h.DeleteVersion)
			})
		})
	})

	return r
}

// ListGroups handles GET /{kind}
func (h *KindHandlers[G, R]) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListGroups(r.Context(), h.base(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// PutGroups handles POST and PUT /{kind} with an id-keyed map of groups
func (h *KindHandlers[G, R]) PutGroups(w http.ResponseWriter, r *http.Request) {
	data, err := readJSON(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups, err := h.groups.DecodeGroups(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.ValidateIDs("id", groups); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.groups.PutGroups(r.Context(), h.base(r), groups)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteGroups handles DELETE /{kind}. The body is an id-keyed map naming
// the groups to delete; its values are ignored.
func (h *KindHandlers[G, R]) DeleteGroups(w http.ResponseWriter, r *http.Request) {
	var items map[string]json.RawMessage
	if err := decodeBody(w, r, &items); err != nil {
		writeError(w, r, err)
		return
	}
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out, err := h.groups.DeleteGroups(r.Context(), h.base(r), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetGroup handles GET /{kind}/{id}
func (h *KindHandlers[G, R]) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.GetGroup(r.Context(), h.base(r), param(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// PutGroup handles PUT and POST /{kind}/{id}
func (h *KindHandlers[G, R]) PutGroup(w http.ResponseWriter, r *http.Request) {
	id := param(r, "groupID")
	g := h.groups.Kind().NewGroup()
	if err := decodeBody(w, r, g); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.ValidateBodyID(id, g.Base().ID); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.groups.PutGroup(r.Context(), h.base(r), id, g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteGroup handles DELETE /{kind}/{id}[?version=n]
func (h *KindHandlers[G, R]) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	pre, err := precondition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.groups.DeleteGroup(r.Context(), h.base(r), param(r, "groupID"), pre)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ListResources handles GET /{kind}/{id}/{resources}
func (h *KindHandlers[G, R]) ListResources(w http.ResponseWriter, r *http.Request) {
	items, err := h.groups.Resources().List(r.Context(), h.base(r), param(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// PutResources handles PUT and POST /{kind}/{id}/{resources} with an
// id-keyed map of resources
func (h *KindHandlers[G, R]) PutResources(w http.ResponseWriter, r *http.Request) {
	var items map[string]R
	if err := decodeBody(w, r, &items); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.ValidateIDs("id", items); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.groups.Resources().PutMany(r.Context(), h.base(r), param(r, "groupID"), items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PutResource handles PUT /{kind}/{id}/{resources}/{rid}
func (h *KindHandlers[G, R]) PutResource(w http.ResponseWriter, r *http.Request) {
	id := param(r, "resourceID")
	res := h.groups.Kind().NewResource()
	if err := decodeBody(w, r, res); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.ValidateBodyID(id, res.Base().ID); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.groups.Resources().Put(r.Context(), h.base(r), param(r, "groupID"), id, res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteResource handles DELETE /{kind}/{id}/{resources}/{rid}[?version=n]
func (h *KindHandlers[G, R]) DeleteResource(w http.ResponseWriter, r *http.Request) {
	pre, err := precondition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.groups.Resources().Delete(r.Context(), h.base(r), param(r, "groupID"), param(r, "resourceID"), pre)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetLatestVersion handles GET /{kind}/{id}/{resources}/{rid}[?meta]
func (h *KindHandlers[G, R]) GetLatestVersion(w http.ResponseWriter, r *http.Request) {
	res, err := h.versions.GetLatestVersion(r.Context(), h.base(r), param(r, "groupID"), param(r, "resourceID"), flag(r, "meta"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeVersionResult(w, r, res)
}

// GetVersion handles GET .../{rid}/versions/{vid}[?meta]
func (h *KindHandlers[G, R]) GetVersion(w http.ResponseWriter, r *http.Request) {
	res, err := h.versions.GetVersion(r.Context(), h.base(r), param(r, "groupID"), param(r, "resourceID"), param(r, "versionID"), flag(r, "meta"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeVersionResult(w, r, res)
}

// ListVersions handles GET .../{rid}/versions
func (h *KindHandlers[G, R]) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.ListVersions(r.Context(), h.base(r), param(r, "groupID"), param(r, "resourceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// PostVersion handles POST .../{rid} and POST .../{rid}/versions. JSON
// bodies are version records or inline content; other content types are
// raw payloads described by resource-* headers.
func (h *KindHandlers[G, R]) PostVersion(w http.ResponseWriter, r *http.Request) {
	meta, err := versionFromHeaders(r.Header)
	if err != nil {
		writeError(w, r, err)
		return
	}

	up := registry.Upload{
		ContentType: r.Header.Get("Content-Type"),
		Body:        http.MaxBytesReader(w, r.Body, maxContentBytes),
		Size:        r.ContentLength,
		Meta:        meta,
	}
	v, err := h.versions.PostVersion(r.Context(), h.base(r), param(r, "groupID"), param(r, "resourceID"), up)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", v.Self)
	writeJSON(w, http.StatusCreated, v)
}

// DeleteVersion handles DELETE .../{rid}/versions/{vid}
func (h *KindHandlers[G, R]) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	err := h.versions.DeleteVersion(r.Context(), h.base(r), param(r, "groupID"), param(r, "resourceID"), param(r, "versionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeVersionResult renders a version read
func writeVersionResult(w http.ResponseWriter, r *http.Request, res *registry.VersionResult) {
	switch res.Kind {
	case registry.ResultRedirect:
		setVersionHeaders(w.Header(), res.Entity.Base())
		if res.Version != nil && res.Version.ContentType != "" {
			w.Header().Set("Content-Type", res.Version.ContentType)
		}
		w.Header().Set("Location", res.Location)
		w.WriteHeader(http.StatusTemporaryRedirect)

	case registry.ResultInline:
		setVersionHeaders(w.Header(), res.Entity.Base())
		w.Header().Set("Content-Type", res.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Content)

	case registry.ResultBlob:
		defer res.Blob.Body.Close()
		setVersionHeaders(w.Header(), res.Entity.Base())
		w.Header().Set("Content-Type", res.ContentType)
		if res.Blob.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(res.Blob.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, res.Blob.Body); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to stream version content")
		}

	default:
		writeJSON(w, http.StatusOK, res.Entity)
	}
}

// setVersionHeaders copies the metadata of a version into resource-* headers
func setVersionHeaders(h http.Header, v *model.Resource) {
	set := func(key, value string) {
		if value != "" {
			h.Set(key, mime.QEncoding.Encode("utf-8", value))
		}
	}
	setTime := func(key string, t time.Time) {
		if !t.IsZero() {
			h.Set(key, t.UTC().Format(time.RFC3339))
		}
	}

	set(HeaderID, v.ID)
	set(HeaderDescription, v.Description)
	set(HeaderDocs, v.Docs)
	set(HeaderName, v.Name)
	set(HeaderOrigin, v.Origin)
	h.Set(HeaderVersion, strconv.FormatInt(v.Version, 10))
	setTime(HeaderCreatedOn, v.CreatedOn)
	set(HeaderCreatedBy, v.CreatedBy)
	setTime(HeaderModifiedOn, v.ModifiedOn)
	set(HeaderModifiedBy, v.ModifiedBy)
}

// versionFromHeaders reads the client supplied resource-* headers of an
// upload. System fields (id, version, timestamps) are assigned by the
// registry and ignored here.
func versionFromHeaders(h http.Header) (*model.ResourceVersion, error) {
	v := &model.ResourceVersion{}
	v.Description = decodeHeader(h.Get(HeaderDescription))
	v.Docs = decodeHeader(h.Get(HeaderDocs))
	v.Name = decodeHeader(h.Get(HeaderName))
	v.Origin = decodeHeader(h.Get(HeaderOrigin))
	v.CreatedBy = decodeHeader(h.Get(HeaderCreatedBy))
	v.ModifiedBy = decodeHeader(h.Get(HeaderModifiedBy))

	if ct := h.Get("Content-Type"); ct != "" {
		if _, _, err := mime.ParseMediaType(ct); err != nil {
			return nil, registry.ValidationError{Reason: fmt.Sprintf("invalid content type '%s'", ct)}
		}
	}
	return v, nil
}

// decodeHeader decodes RFC 2047 encoded words so non-ASCII names survive
// the trip through a header
func decodeHeader(v string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}
