package registry

import (
	"context"
	"errors"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ResourceEngine manages the flat resource collection of one group kind.
// Resources live in their own container partitioned by the owning group id.
type ResourceEngine[R model.Entity] struct {
	groupKind string
	name      string
	label     string
	docs      *documents[R]
	blobs     blob.Store // version content, set by NewVersionEngine
	opts      Options
	log       zerolog.Logger
}

// NewResourceEngine creates an engine over coll
func NewResourceEngine[R model.Entity](coll docstore.Collection, groupKind, resourceKind string, newResource func() R, opts Options) *ResourceEngine[R] {
	opts = opts.withDefaults()
	log := logger.WithKind("registry", groupKind+"/"+resourceKind)
	return &ResourceEngine[R]{
		groupKind: groupKind,
		name:      resourceKind,
		label:     groupKind + "/" + resourceKind,
		docs: &documents[R]{
			coll:     coll,
			kind:     resourceKind,
			newDoc:   newResource,
			pageSize: opts.PageSize,
			log:      log,
		},
		opts: opts,
		log:  log,
	}
}

// Name returns the resource kind, e.g. "schemas"
func (e *ResourceEngine[R]) Name() string {
	return e.name
}

// GroupKind returns the owning group kind, e.g. "schemagroups"
func (e *ResourceEngine[R]) GroupKind() string {
	return e.groupKind
}

// Self returns the URL of a resource
func (e *ResourceEngine[R]) Self(base, groupID, id string) string {
	return SelfURL(base, e.groupKind, groupID, e.name, id)
}

// decorate sets self on r and on its versions
func (e *ResourceEngine[R]) decorate(base, groupID string, r R) R {
	b := r.Base()
	b.Self = e.Self(base, groupID, b.ID)
	if v, ok := any(r).(model.Versioned); ok {
		for vid, version := range v.VersionMap() {
			if version == nil {
				continue
			}
			version.ID = vid
			version.GroupID = groupID
			version.Self = SelfURL(b.Self, "versions", vid)
		}
	}
	return r
}

func (e *ResourceEngine[R]) span(ctx context.Context, op, groupID, id string) (context.Context, func(error)) {
	return e.opts.span(ctx, e.label, op,
		attribute.String(tracing.AttrGroupID, groupID),
		attribute.String(tracing.AttrResourceKind, e.name),
		attribute.String(tracing.AttrResourceID, id),
	)
}

// List returns the resources of one group keyed by id
func (e *ResourceEngine[R]) List(ctx context.Context, base, groupID string) (map[string]R, error) {
	ctx, finish := e.span(ctx, "list_resources", groupID, "")
	defer finish(nil)

	out := e.docs.list(ctx, groupID)
	for _, r := range out {
		e.decorate(base, groupID, r)
	}
	return out, nil
}

// Get returns one resource or NotFoundError
func (e *ResourceEngine[R]) Get(ctx context.Context, base, groupID, id string) (r R, err error) {
	ctx, finish := e.span(ctx, "get_resource", groupID, id)
	defer func() { finish(err) }()

	r, _, err = e.docs.read(ctx, groupID, id)
	if err != nil {
		return r, err
	}
	return e.decorate(base, groupID, r), nil
}

// Put creates or updates one resource and notifies on change
func (e *ResourceEngine[R]) Put(ctx context.Context, base, groupID, id string, r R) (out R, err error) {
	ctx, finish := e.span(ctx, "put_resource", groupID, id)
	defer func() { finish(err) }()

	out, outcome, err := e.write(ctx, base, groupID, id, r)
	if err != nil {
		return out, err
	}
	e.notify(ctx, outcome, out)
	return out, nil
}

// PutMany upserts an id-keyed collection in id order, stopping at the first failure.
// Resources written before the failure are returned with the error.
func (e *ResourceEngine[R]) PutMany(ctx context.Context, base, groupID string, items map[string]R) (map[string]R, error) {
	out := make(map[string]R, len(items))
	for _, id := range sortedKeys(items) {
		r := items[id]
		if isNil(r) {
			continue
		}
		written, err := e.Put(ctx, base, groupID, id, r)
		if err != nil {
			return out, err
		}
		out[id] = written
	}
	return out, nil
}

// write runs the version protocol without notifying. Group writes use it
// for their nested resources.
func (e *ResourceEngine[R]) write(ctx context.Context, base, groupID, id string, r R) (R, writeOutcome, error) {
	for field, value := range map[string]string{"group id": groupID, e.name + " id": id} {
		if err := e.opts.checkID(field, value); err != nil {
			var zero R
			return zero, 0, err
		}
	}
	out, outcome, err := e.docs.write(ctx, groupID, groupID, id, r, e.opts.now(), keepVersions(r))
	if err != nil {
		return out, 0, err
	}
	if outcome == outcomeCreated {
		e.opts.Metrics.RecordResourceCreated(e.label)
	}
	return e.decorate(base, groupID, out), outcome, nil
}

// keepVersions carries stored version records over when an update of a
// versioned resource does not list any
func keepVersions[R model.Entity](incoming R) prepareFunc[R] {
	return func(existing R, exists bool) error {
		if !exists {
			return nil
		}
		in, ok := any(incoming).(model.Versioned)
		if !ok {
			return nil
		}
		stored := any(existing).(model.Versioned)
		if len(in.VersionMap()) == 0 && len(stored.VersionMap()) > 0 {
			in.SetVersionMap(stored.VersionMap())
		}
		return nil
	}
}

func (e *ResourceEngine[R]) notify(ctx context.Context, outcome writeOutcome, r R) {
	switch outcome {
	case outcomeCreated:
		e.opts.emit(ctx, notify.TypeCreated, r)
	case outcomeUpdated:
		e.opts.emit(ctx, notify.TypeChanged, r)
	}
}

// Delete removes one resource. A non-nil precondition lower than the
// stored version is a VersionConflictError.
func (e *ResourceEngine[R]) Delete(ctx context.Context, base, groupID, id string, precondition *int64) (r R, err error) {
	ctx, finish := e.span(ctx, "delete_resource", groupID, id)
	defer func() { finish(err) }()

	r, _, err = e.docs.read(ctx, groupID, id)
	if err != nil {
		return r, err
	}
	if err := checkPrecondition(e.name, r, precondition); err != nil {
		var zero R
		return zero, err
	}

	if err := e.docs.coll.Delete(ctx, groupID, id); err != nil {
		var nf docstore.NotFoundError
		if errors.As(err, &nf) {
			var zero R
			return zero, NotFoundError{Kind: e.name, ID: id}
		}
		var zero R
		return zero, err
	}

	e.purgeContent(ctx, groupID, id, r)

	e.opts.Metrics.RecordResourceDeleted(e.label)
	e.decorate(base, groupID, r)
	e.opts.emit(ctx, notify.TypeDeleted, r)
	return r, nil
}

// deleteAll removes every resource of a group without notifying
func (e *ResourceEngine[R]) deleteAll(ctx context.Context, groupID string) int {
	n := e.docs.deletePartition(ctx, groupID, func(id string, r R) {
		e.purgeContent(ctx, groupID, id, r)
	})
	for i := 0; i < n; i++ {
		e.opts.Metrics.RecordResourceDeleted(e.label)
	}
	if n > 0 {
		e.log.Debug().Str("group_id", groupID).Int("deleted", n).Msg("Cascade deleted resources")
	}
	return n
}

// purgeContent removes the blob content of every version of a deleted
// resource, so a later resource with the same id starts empty. Failures are
// logged only.
func (e *ResourceEngine[R]) purgeContent(ctx context.Context, groupID, id string, r R) {
	if e.blobs == nil {
		return
	}
	versioned, ok := any(r).(model.Versioned)
	if !ok {
		return
	}
	for vid := range versioned.VersionMap() {
		key := blob.VersionKey(groupID, e.name, id, vid)
		if err := e.blobs.Delete(ctx, e.groupKind, key); err != nil {
			e.log.Warn().Err(err).Str("group_id", groupID).Str("id", id).Str("version_id", vid).Msg("Failed to delete version content")
		}
	}
}

func checkPrecondition(kind string, entity model.Entity, precondition *int64) error {
	if precondition == nil {
		return nil
	}
	b := entity.Base()
	if *precondition < b.Version {
		return VersionConflictError{Kind: kind, ID: b.ID, Stored: b.Version, Incoming: *precondition}
	}
	return nil
}
