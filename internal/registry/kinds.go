package registry

import "github.com/catalogd/registry/internal/model"

// GroupKind describes one registry kind: a group type G owning a collection
// of resources R.
type GroupKind[G, R model.Entity] struct {
	// Name is the URL segment and container name of the groups
	Name string
	// ResourceName is the URL segment of the nested resources
	ResourceName string

	NewGroup    func() G
	NewResource func() R
	// Resources returns the nested resources embedded in a group
	Resources func(G) map[string]R
	// SetResources replaces the nested resources embedded in a group
	SetResources func(G, map[string]R)
}

// Kind names
const (
	KindDefinitionGroups = "groups"
	KindSchemaGroups     = "schemagroups"
	KindEndpoints        = "endpoints"
)

// DefinitionGroups is the "groups" kind: definition groups holding definitions
var DefinitionGroups = GroupKind[*model.DefinitionGroup, *model.Definition]{
	Name:         KindDefinitionGroups,
	ResourceName: "definitions",
	NewGroup:     func() *model.DefinitionGroup { return &model.DefinitionGroup{} },
	NewResource:  func() *model.Definition { return &model.Definition{} },
	Resources:    func(g *model.DefinitionGroup) map[string]*model.Definition { return g.Definitions },
	SetResources: func(g *model.DefinitionGroup, r map[string]*model.Definition) { g.Definitions = r },
}

// SchemaGroups is the "schemagroups" kind: schema groups holding schemas
var SchemaGroups = GroupKind[*model.SchemaGroup, *model.Schema]{
	Name:         KindSchemaGroups,
	ResourceName: "schemas",
	NewGroup:     func() *model.SchemaGroup { return &model.SchemaGroup{} },
	NewResource:  func() *model.Schema { return &model.Schema{} },
	Resources:    func(g *model.SchemaGroup) map[string]*model.Schema { return g.Schemas },
	SetResources: func(g *model.SchemaGroup, r map[string]*model.Schema) { g.Schemas = r },
}

// Endpoints is the "endpoints" kind: endpoints holding the definitions of
// the messages they carry
var Endpoints = GroupKind[*model.Endpoint, *model.Definition]{
	Name:         KindEndpoints,
	ResourceName: "definitions",
	NewGroup:     func() *model.Endpoint { return &model.Endpoint{} },
	NewResource:  func() *model.Definition { return &model.Definition{} },
	Resources:    func(e *model.Endpoint) map[string]*model.Definition { return e.Definitions },
	SetResources: func(e *model.Endpoint, r map[string]*model.Definition) { e.Definitions = r },
}
