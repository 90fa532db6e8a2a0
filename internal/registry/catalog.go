package registry

import (
	"bytes"
	"context"
	"encoding/json"
)

// catalogKind is the kind-independent view of a group engine
type catalogKind interface {
	Name() string
	listAny(ctx context.Context, base string) (any, int, error)
	putAny(ctx context.Context, base string, data []byte) (any, error)
}

// Catalog composes the top-level registry document from every kind
type Catalog struct {
	kinds []catalogKind
}

func newCatalog(kinds ...catalogKind) *Catalog {
	return &Catalog{kinds: kinds}
}

// Build returns the catalog document: self plus a {kind}Url link per kind.
// With inline set, each kind's groups and their count are embedded.
func (c *Catalog) Build(ctx context.Context, base string, inline bool) (map[string]any, error) {
	doc := map[string]any{"self": SelfURL(base)}
	for _, k := range c.kinds {
		doc[k.Name()+"Url"] = SelfURL(base, k.Name())
		if !inline {
			continue
		}
		groups, n, err := k.listAny(ctx, base)
		if err != nil {
			return nil, err
		}
		doc[k.Name()] = groups
		doc[k.Name()+"Count"] = n
	}
	return doc, nil
}

// Merge upserts the group maps found in a catalog document, kind by kind,
// and returns the resulting inline catalog. Other fields are ignored.
func (c *Catalog) Merge(ctx context.Context, base string, data []byte) (map[string]any, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ValidationError{Reason: "malformed catalog document: " + err.Error()}
	}
	if doc == nil {
		return nil, ValidationError{Reason: "empty catalog document"}
	}

	for _, k := range c.kinds {
		raw, ok := doc[k.Name()]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		if _, err := k.putAny(ctx, base, raw); err != nil {
			return nil, err
		}
	}
	return c.Build(ctx, base, true)
}
