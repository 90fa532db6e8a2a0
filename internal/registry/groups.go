package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// GroupEngine manages the groups of one kind together with their nested
// resources. Group documents are stored without their resources; reads
// rebuild the nested collection from the resource partition.
type GroupEngine[G, R model.Entity] struct {
	kind      GroupKind[G, R]
	docs      *documents[G]
	resources *ResourceEngine[R]
	opts      Options
	log       zerolog.Logger
}

// NewGroupEngine creates an engine over the group and resource containers
func NewGroupEngine[G, R model.Entity](kind GroupKind[G, R], groups, resources docstore.Collection, opts Options) *GroupEngine[G, R] {
	opts = opts.withDefaults()
	log := logger.WithKind("registry", kind.Name)
	return &GroupEngine[G, R]{
		kind: kind,
		docs: &documents[G]{
			coll:     groups,
			kind:     kind.Name,
			newDoc:   kind.NewGroup,
			pageSize: opts.PageSize,
			log:      log,
		},
		resources: NewResourceEngine(resources, kind.Name, kind.ResourceName, kind.NewResource, opts),
		opts:      opts,
		log:       log,
	}
}

// Name returns the kind name, e.g. "schemagroups"
func (e *GroupEngine[G, R]) Name() string {
	return e.kind.Name
}

// Kind returns the kind descriptor
func (e *GroupEngine[G, R]) Kind() GroupKind[G, R] {
	return e.kind
}

// Resources returns the engine of the nested resource collection
func (e *GroupEngine[G, R]) Resources() *ResourceEngine[R] {
	return e.resources
}

// Self returns the URL of a group
func (e *GroupEngine[G, R]) Self(base, id string) string {
	return SelfURL(base, e.kind.Name, id)
}

func (e *GroupEngine[G, R]) span(ctx context.Context, op, id string) (context.Context, func(error)) {
	return e.opts.span(ctx, e.kind.Name, op, attribute.String(tracing.AttrGroupID, id))
}

// hydrate replaces the nested resources of g with a fresh read of its
// partition and sets self on every level
func (e *GroupEngine[G, R]) hydrate(ctx context.Context, base string, g G) G {
	id := g.Base().ID
	g.Base().Self = e.Self(base, id)

	children := e.resources.docs.list(ctx, id)
	for _, r := range children {
		e.resources.decorate(base, id, r)
	}
	if len(children) == 0 {
		children = nil
	}
	e.kind.SetResources(g, children)
	return g
}

// ListGroups returns every group keyed by id, without nested resources
func (e *GroupEngine[G, R]) ListGroups(ctx context.Context, base string) (map[string]G, error) {
	ctx, finish := e.span(ctx, "list_groups", "")
	defer finish(nil)

	out := e.docs.list(ctx, "")
	for id, g := range out {
		g.Base().Self = e.Self(base, id)
		e.kind.SetResources(g, nil)
	}
	return out, nil
}

// GetGroup returns one group with its nested resources, or NotFoundError
func (e *GroupEngine[G, R]) GetGroup(ctx context.Context, base, id string) (g G, err error) {
	ctx, finish := e.span(ctx, "get_group", id)
	defer func() { finish(err) }()

	g, _, err = e.docs.read(ctx, id, id)
	if err != nil {
		return g, err
	}
	return e.hydrate(ctx, base, g), nil
}

// PutGroup creates or updates a group. Nested resources are written first
// through the resource version protocol; the first failing resource aborts
// the write with a ChildError and resources already written stay written.
func (e *GroupEngine[G, R]) PutGroup(ctx context.Context, base, id string, g G) (out G, err error) {
	ctx, finish := e.span(ctx, "put_group", id)
	defer func() { finish(err) }()

	if err := e.opts.checkID(e.kind.Name+" id", id); err != nil {
		return out, err
	}

	children := e.kind.Resources(g)
	e.kind.SetResources(g, nil)

	var written map[string]R
	prepare := func(existing G, exists bool) error {
		written = make(map[string]R, len(children))
		for _, cid := range sortedKeys(children) {
			child := children[cid]
			if isNil(child) {
				continue
			}
			r, _, err := e.resources.write(ctx, base, id, cid, child)
			if err != nil {
				return ChildError{Kind: e.kind.ResourceName, ID: cid, Err: err}
			}
			written[cid] = r
		}
		return nil
	}

	out, outcome, err := e.docs.write(ctx, id, "", id, g, e.opts.now(), prepare)
	if err != nil {
		return out, err
	}

	if outcome == outcomeUnchanged {
		return e.hydrate(ctx, base, out), nil
	}

	out.Base().Self = e.Self(base, id)
	if len(written) == 0 {
		written = nil
	}
	e.kind.SetResources(out, written)

	if outcome == outcomeCreated {
		e.opts.Metrics.RecordResourceCreated(e.kind.Name)
		e.opts.emit(ctx, notify.TypeCreated, out)
	} else {
		e.opts.emit(ctx, notify.TypeChanged, out)
	}
	return out, nil
}

// PutGroups upserts an id-keyed collection in id order, stopping at the
// first failure. Groups written before the failure are returned with the error.
func (e *GroupEngine[G, R]) PutGroups(ctx context.Context, base string, groups map[string]G) (map[string]G, error) {
	out := make(map[string]G, len(groups))
	for _, id := range sortedKeys(groups) {
		g, err := e.PutGroup(ctx, base, id, groups[id])
		if err != nil {
			return out, err
		}
		out[id] = g
	}
	return out, nil
}

// DeleteGroup removes a group and every resource in its partition. The
// notification carries the group as it was before the delete.
func (e *GroupEngine[G, R]) DeleteGroup(ctx context.Context, base, id string, precondition *int64) (g G, err error) {
	ctx, finish := e.span(ctx, "delete_group", id)
	defer func() { finish(err) }()

	var zero G
	g, _, err = e.docs.read(ctx, id, id)
	if err != nil {
		return zero, err
	}
	if err := checkPrecondition(e.kind.Name, g, precondition); err != nil {
		return zero, err
	}

	snapshot := e.hydrate(ctx, base, g)

	if err := e.docs.coll.Delete(ctx, id, id); err != nil {
		var nf docstore.NotFoundError
		if errors.As(err, &nf) {
			return zero, NotFoundError{Kind: e.kind.Name, ID: id}
		}
		return zero, err
	}
	e.resources.deleteAll(ctx, id)

	e.opts.Metrics.RecordResourceDeleted(e.kind.Name)
	e.opts.emit(ctx, notify.TypeDeleted, snapshot)
	return snapshot, nil
}

// DeleteGroups deletes the listed groups, skipping ids that do not exist.
// NotFoundError is returned when none of them existed.
func (e *GroupEngine[G, R]) DeleteGroups(ctx context.Context, base string, ids []string) (map[string]G, error) {
	out := make(map[string]G, len(ids))
	for _, id := range ids {
		g, err := e.DeleteGroup(ctx, base, id, nil)
		if err != nil {
			var nf NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return out, err
		}
		out[id] = g
	}
	if len(out) == 0 {
		return nil, NotFoundError{Kind: e.kind.Name, ID: strings.Join(ids, ",")}
	}
	return out, nil
}

// DecodeGroups parses an id-keyed JSON map of groups
func (e *GroupEngine[G, R]) DecodeGroups(data []byte) (map[string]G, error) {
	var groups map[string]G
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, ValidationError{Reason: "malformed " + e.kind.Name + " collection: " + err.Error()}
	}
	for id, g := range groups {
		if isNil(g) {
			delete(groups, id)
		}
	}
	return groups, nil
}

// listAny and putAny let the catalog work with every kind uniformly

func (e *GroupEngine[G, R]) listAny(ctx context.Context, base string) (any, int, error) {
	groups, err := e.ListGroups(ctx, base)
	return groups, len(groups), err
}

func (e *GroupEngine[G, R]) putAny(ctx context.Context, base string, data []byte) (any, error) {
	groups, err := e.DecodeGroups(data)
	if err != nil {
		return nil, err
	}
	return e.PutGroups(ctx, base, groups)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
