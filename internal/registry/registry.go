package registry

import (
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/storage"
	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/storage/docstore"
)

// Backend provides the containers and the optional blob store the
// registry runs on. *storage.Storage satisfies it.
type Backend interface {
	Collection(name string) docstore.Collection
	Blobs() blob.Store
}

// Registry wires the engines of every kind over one backend
type Registry struct {
	Groups       *GroupEngine[*model.DefinitionGroup, *model.Definition]
	SchemaGroups *GroupEngine[*model.SchemaGroup, *model.Schema]
	Endpoints    *GroupEngine[*model.Endpoint, *model.Definition]

	// Version engines of the nested resources, one per kind
	GroupDefinitions    *VersionEngine[*model.Definition]
	Schemas             *VersionEngine[*model.Schema]
	EndpointDefinitions *VersionEngine[*model.Definition]

	Catalog *Catalog
}

// New creates a registry. validate checks inline version content and may be nil.
func New(backend Backend, validate ContentValidator, opts Options) *Registry {
	opts = opts.withDefaults()
	blobs := backend.Blobs()

	groups := newGroupEngine(backend, DefinitionGroups, opts)
	schemaGroups := newGroupEngine(backend, SchemaGroups, opts)
	endpoints := newGroupEngine(backend, Endpoints, opts)

	return &Registry{
		Groups:              groups,
		SchemaGroups:        schemaGroups,
		Endpoints:           endpoints,
		GroupDefinitions:    NewVersionEngine(groups.Resources(), blobs, validate, opts),
		Schemas:             NewVersionEngine(schemaGroups.Resources(), blobs, validate, opts),
		EndpointDefinitions: NewVersionEngine(endpoints.Resources(), blobs, validate, opts),
		Catalog:             newCatalog(groups, schemaGroups, endpoints),
	}
}

func newGroupEngine[G, R model.Entity](backend Backend, kind GroupKind[G, R], opts Options) *GroupEngine[G, R] {
	return NewGroupEngine(kind,
		backend.Collection(storage.GroupContainer(kind.Name)),
		backend.Collection(storage.ResourceContainer(kind.Name, kind.ResourceName)),
		opts,
	)
}
