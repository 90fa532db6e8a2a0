package model

import "encoding/json"

// Versioned is implemented by resources that own version records
type Versioned interface {
	Entity
	VersionMap() map[string]*ResourceVersion
	SetVersionMap(map[string]*ResourceVersion)
}

// ResourceVersion is one immutable revision of a resource. Content is
// either inline (Schema), external (SchemaURL) or kept in blob storage.
type ResourceVersion struct {
	Resource
	SchemaURL   string
	Schema      json.RawMessage
	ContentType string
}

// MarshalJSON implements json.Marshaler
func (v ResourceVersion) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if v.SchemaURL != "" {
		fields["schemaUrl"] = v.SchemaURL
	}
	if len(v.Schema) > 0 {
		fields["schema"] = v.Schema
	}
	if v.ContentType != "" {
		fields["contentType"] = v.ContentType
	}
	return MarshalEntity(&v.Resource, fields)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *ResourceVersion) UnmarshalJSON(data []byte) error {
	v.SchemaURL, v.Schema, v.ContentType = "", nil, ""
	return UnmarshalEntity(data, &v.Resource, map[string]any{
		"schemaUrl":   &v.SchemaURL,
		"schema":      &v.Schema,
		"contentType": &v.ContentType,
	})
}

// Definition describes a message or event shape. Its "format" and
// "metadata" extensions carry the CloudEvents attribute template.
type Definition struct {
	Resource
	Versions map[string]*ResourceVersion
}

func (d *Definition) VersionMap() map[string]*ResourceVersion     { return d.Versions }
func (d *Definition) SetVersionMap(v map[string]*ResourceVersion) { d.Versions = v }

// Format returns the definition format, e.g. "CloudEvents/1.0"
func (d *Definition) Format() string {
	return d.ExtensionString("format")
}

// Metadata returns the raw attribute template, if any
func (d *Definition) Metadata() json.RawMessage {
	return d.Extensions["metadata"]
}

// MarshalJSON implements json.Marshaler
func (d Definition) MarshalJSON() ([]byte, error) {
	return MarshalEntity(&d.Resource, versionFields(d.Versions))
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Definition) UnmarshalJSON(data []byte) error {
	d.Versions = nil
	return UnmarshalEntity(data, &d.Resource, map[string]any{"versions": &d.Versions})
}

// Schema is a versioned schema document
type Schema struct {
	Resource
	Versions map[string]*ResourceVersion
}

func (s *Schema) VersionMap() map[string]*ResourceVersion     { return s.Versions }
func (s *Schema) SetVersionMap(v map[string]*ResourceVersion) { s.Versions = v }

// Format returns the schema format, e.g. "JsonSchema/draft-07"
func (s *Schema) Format() string {
	return s.ExtensionString("format")
}

// MarshalJSON implements json.Marshaler
func (s Schema) MarshalJSON() ([]byte, error) {
	return MarshalEntity(&s.Resource, versionFields(s.Versions))
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Schema) UnmarshalJSON(data []byte) error {
	s.Versions = nil
	return UnmarshalEntity(data, &s.Resource, map[string]any{"versions": &s.Versions})
}

func versionFields(versions map[string]*ResourceVersion) map[string]any {
	if len(versions) == 0 {
		return nil
	}
	return map[string]any{"versions": versions}
}

// DefinitionGroup groups related definitions
type DefinitionGroup struct {
	Resource
	Definitions map[string]*Definition
}

// MarshalJSON implements json.Marshaler
func (g DefinitionGroup) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if len(g.Definitions) > 0 {
		fields["definitions"] = g.Definitions
	}
	return MarshalEntity(&g.Resource, fields)
}

// UnmarshalJSON implements json.Unmarshaler
func (g *DefinitionGroup) UnmarshalJSON(data []byte) error {
	g.Definitions = nil
	return UnmarshalEntity(data, &g.Resource, map[string]any{"definitions": &g.Definitions})
}

// SchemaGroup groups related schemas
type SchemaGroup struct {
	Resource
	Schemas map[string]*Schema
}

// MarshalJSON implements json.Marshaler
func (g SchemaGroup) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if len(g.Schemas) > 0 {
		fields["schemas"] = g.Schemas
	}
	return MarshalEntity(&g.Resource, fields)
}

// UnmarshalJSON implements json.Unmarshaler
func (g *SchemaGroup) UnmarshalJSON(data []byte) error {
	g.Schemas = nil
	return UnmarshalEntity(data, &g.Resource, map[string]any{"schemas": &g.Schemas})
}

// Endpoint is a messaging endpoint together with the definitions of the
// messages it carries. Usage and delivery config are extensions.
type Endpoint struct {
	Resource
	Definitions map[string]*Definition
}

// Usage returns the endpoint usage, e.g. "producer" or "subscriber"
func (e *Endpoint) Usage() string {
	return e.ExtensionString("usage")
}

// Config returns the raw delivery configuration, if any
func (e *Endpoint) Config() json.RawMessage {
	return e.Extensions["config"]
}

// MarshalJSON implements json.Marshaler
func (e Endpoint) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if len(e.Definitions) > 0 {
		fields["definitions"] = e.Definitions
	}
	return MarshalEntity(&e.Resource, fields)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	e.Definitions = nil
	return UnmarshalEntity(data, &e.Resource, map[string]any{"definitions": &e.Definitions})
}
