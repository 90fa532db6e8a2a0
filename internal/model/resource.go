package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entity is implemented by every registry document: groups, resources
// and versions all expose their common base fields.
type Entity interface {
	Base() *Resource
}

// Resource carries the fields shared by every level of the registry.
// Extensions holds additional properties; they are serialized as sibling
// top-level fields and survive a decode/encode round trip untouched.
type Resource struct {
	ID          string
	GroupID     string
	Version     int64
	Self        string
	Description string
	Name        string
	Docs        string
	Origin      string
	CreatedBy   string
	CreatedOn   time.Time
	ModifiedBy  string
	ModifiedOn  time.Time
	Extensions  map[string]json.RawMessage
}

// Base returns r itself; kinds embedding Resource inherit it.
func (r *Resource) Base() *Resource {
	return r
}

// resourceJSON is the wire shape of the known fields
type resourceJSON struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"groupId,omitempty"`
	Version     int64      `json:"version"`
	Self        string     `json:"self,omitempty"`
	Description string     `json:"description,omitempty"`
	Name        string     `json:"name,omitempty"`
	Docs        string     `json:"docs,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedOn   *time.Time `json:"createdOn,omitempty"`
	ModifiedBy  string     `json:"modifiedBy,omitempty"`
	ModifiedOn  *time.Time `json:"modifiedOn,omitempty"`
}

// epochField is accepted on input as an alias of version
const epochField = "epoch"

var knownFields = map[string]bool{
	"id":          true,
	"groupId":     true,
	"version":     true,
	"self":        true,
	"description": true,
	"name":        true,
	"docs":        true,
	"origin":      true,
	"createdBy":   true,
	"createdOn":   true,
	"modifiedBy":  true,
	"modifiedOn":  true,
	epochField:    true,
}

// SystemPropertyPrefix marks storage-only fields such as _etag and _ts.
const SystemPropertyPrefix = "_"

// MarshalJSON implements json.Marshaler
func (r Resource) MarshalJSON() ([]byte, error) {
	return MarshalEntity(&r, nil)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Resource) UnmarshalJSON(data []byte) error {
	return UnmarshalEntity(data, r, nil)
}

// MarshalEntity encodes base plus the kind-specific fields as one flat
// object. Known fields win over extensions with the same name.
func MarshalEntity(base *Resource, fields map[string]any) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(base.Extensions)+len(knownFields)+len(fields))
	for k, v := range base.Extensions {
		if knownFields[k] {
			continue
		}
		out[k] = v
	}

	wire := resourceJSON{
		ID:          base.ID,
		GroupID:     base.GroupID,
		Version:     base.Version,
		Self:        base.Self,
		Description: base.Description,
		Name:        base.Name,
		Docs:        base.Docs,
		Origin:      base.Origin,
		CreatedBy:   base.CreatedBy,
		ModifiedBy:  base.ModifiedBy,
	}
	if !base.CreatedOn.IsZero() {
		t := base.CreatedOn
		wire.CreatedOn = &t
	}
	if !base.ModifiedOn.IsZero() {
		t := base.ModifiedOn
		wire.ModifiedOn = &t
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		out[k] = v
	}

	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		out[name] = raw
	}

	return json.Marshal(out)
}

// UnmarshalEntity decodes data into base and the kind-specific fields
// (name -> pointer). Every other member lands in base.Extensions.
func UnmarshalEntity(data []byte, base *Resource, fields map[string]any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var wire resourceJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*base = Resource{
		ID:          wire.ID,
		GroupID:     wire.GroupID,
		Version:     wire.Version,
		Self:        wire.Self,
		Description: wire.Description,
		Name:        wire.Name,
		Docs:        wire.Docs,
		Origin:      wire.Origin,
		CreatedBy:   wire.CreatedBy,
		ModifiedBy:  wire.ModifiedBy,
	}
	if wire.CreatedOn != nil {
		base.CreatedOn = *wire.CreatedOn
	}
	if wire.ModifiedOn != nil {
		base.ModifiedOn = *wire.ModifiedOn
	}

	if _, hasVersion := raw["version"]; !hasVersion {
		if epoch, ok := raw[epochField]; ok {
			if err := json.Unmarshal(epoch, &base.Version); err != nil {
				return fmt.Errorf("invalid epoch: %w", err)
			}
		}
	}

	for name, ptr := range fields {
		value, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, ptr); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if _, ok := fields[k]; ok {
			continue
		}
		if base.Extensions == nil {
			base.Extensions = make(map[string]json.RawMessage)
		}
		base.Extensions[k] = v
	}

	return nil
}

// StripSystemProperties removes storage-only extensions (keys with a
// leading underscore).
func (r *Resource) StripSystemProperties() {
	for k := range r.Extensions {
		if strings.HasPrefix(k, SystemPropertyPrefix) {
			delete(r.Extensions, k)
		}
	}
	if len(r.Extensions) == 0 {
		r.Extensions = nil
	}
}

// Extension decodes the named additional property into v and reports
// whether it was present.
func (r *Resource) Extension(name string, v any) (bool, error) {
	raw, ok := r.Extensions[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("invalid extension %s: %w", name, err)
	}
	return true, nil
}

// ExtensionString returns a string-valued additional property, or ""
func (r *Resource) ExtensionString(name string) string {
	var s string
	if ok, err := r.Extension(name, &s); !ok || err != nil {
		return ""
	}
	return s
}

// SetExtension stores v as an additional property
func (r *Resource) SetExtension(name string, v any) error {
	if knownFields[name] {
		return fmt.Errorf("%s is not an extension property", name)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if r.Extensions == nil {
		r.Extensions = make(map[string]json.RawMessage)
	}
	r.Extensions[name] = raw
	return nil
}
