package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/rs/zerolog"
)

type writeOutcome int

const (
	outcomeUnchanged writeOutcome = iota
	outcomeUpdated
	outcomeCreated
)

// prepareFunc runs after the version check decided to write and before the
// document itself is written. existing is the zero value when creating.
type prepareFunc[T model.Entity] func(existing T, exists bool) error

// documents adapts one docstore collection to typed registry entities
type documents[T model.Entity] struct {
	coll     docstore.Collection
	kind     string
	newDoc   func() T
	pageSize int
	log      zerolog.Logger
}

func (d *documents[T]) decode(body []byte) (T, error) {
	doc := d.newDoc()
	if err := json.Unmarshal(body, doc); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decode %s document: %w", d.kind, err)
	}
	doc.Base().StripSystemProperties()
	return doc, nil
}

// encode serializes doc for storage. self is derived from the request and
// never stored.
func (d *documents[T]) encode(doc T) ([]byte, error) {
	base := doc.Base()
	base.StripSystemProperties()
	self := base.Self
	base.Self = ""
	defer func() { base.Self = self }()

	if v, ok := any(doc).(model.Versioned); ok {
		selfs := make(map[*model.ResourceVersion]string)
		for _, version := range v.VersionMap() {
			if version == nil {
				continue
			}
			version.StripSystemProperties()
			selfs[version] = version.Self
			version.Self = ""
		}
		defer func() {
			for version, s := range selfs {
				version.Self = s
			}
		}()
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s document: %w", d.kind, err)
	}
	return body, nil
}

// read returns the document and its etag, or NotFoundError
func (d *documents[T]) read(ctx context.Context, pk, id string) (T, string, error) {
	var zero T
	item, err := d.coll.Read(ctx, pk, id)
	if err != nil {
		var nf docstore.NotFoundError
		if errors.As(err, &nf) {
			return zero, "", NotFoundError{Kind: d.kind, ID: id}
		}
		return zero, "", err
	}

	doc, err := d.decode(item.Body)
	if err != nil {
		return zero, "", err
	}
	return doc, item.ETag, nil
}

// list pages through one partition, or all when pk is "". Page and decode
// errors are logged and skipped so readers get partial results.
func (d *documents[T]) list(ctx context.Context, pk string) map[string]T {
	out := make(map[string]T)
	pager := d.coll.Query(pk, d.pageSize)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			d.log.Error().Err(err).Str("partition", pk).Msg("Failed to read page")
			break
		}
		for _, item := range page {
			doc, err := d.decode(item.Body)
			if err != nil {
				d.log.Warn().Err(err).Str("partition", pk).Str("id", item.ID).Msg("Skipping undecodable document")
				continue
			}
			out[item.ID] = doc
		}
	}
	return out
}

// deletePartition removes every document of partition pk and hands each
// deleted document to onDelete when set. Failures are logged and the sweep
// continues.
func (d *documents[T]) deletePartition(ctx context.Context, pk string, onDelete func(id string, doc T)) int {
	deleted := 0
	pager := d.coll.Query(pk, d.pageSize)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			d.log.Error().Err(err).Str("partition", pk).Msg("Failed to read page during cascade delete")
			break
		}
		for _, item := range page {
			if err := d.coll.Delete(ctx, pk, item.ID); err != nil {
				d.log.Warn().Err(err).Str("partition", pk).Str("id", item.ID).Msg("Failed to delete document during cascade delete")
				continue
			}
			deleted++
			if onDelete == nil {
				continue
			}
			doc, err := d.decode(item.Body)
			if err != nil {
				d.log.Warn().Err(err).Str("partition", pk).Str("id", item.ID).Msg("Failed to decode deleted document")
				continue
			}
			onDelete(item.ID, doc)
		}
	}
	return deleted
}

// write runs the optimistic version protocol for one document:
// an older incoming version conflicts, an equal version echoes the stored
// document without writing, a newer version replaces it conditionally on
// the etag read, and a missing document is created.
func (d *documents[T]) write(ctx context.Context, pk, groupID, id string, incoming T, now time.Time, prepare prepareFunc[T]) (T, writeOutcome, error) {
	var zero T

	existing, etag, err := d.read(ctx, pk, id)
	exists := true
	if err != nil {
		var nf NotFoundError
		if !errors.As(err, &nf) {
			return zero, 0, err
		}
		exists = false
	}

	in := incoming.Base()
	if exists {
		stored := existing.Base()
		if in.Version < stored.Version {
			return zero, 0, VersionConflictError{Kind: d.kind, ID: id, Stored: stored.Version, Incoming: in.Version}
		}
		if in.Version == stored.Version {
			return existing, outcomeUnchanged, nil
		}
	}

	if prepare != nil {
		if err := prepare(existing, exists); err != nil {
			return zero, 0, err
		}
	}

	in.ID = id
	in.GroupID = groupID
	in.ModifiedOn = now
	if exists {
		stored := existing.Base()
		in.CreatedOn = stored.CreatedOn
		if stored.CreatedBy != "" {
			in.CreatedBy = stored.CreatedBy
		}
	} else {
		in.CreatedOn = now
	}

	body, err := d.encode(incoming)
	if err != nil {
		return zero, 0, err
	}

	if exists {
		if _, err := d.coll.Replace(ctx, pk, id, body, etag); err != nil {
			var pf docstore.PreconditionFailedError
			var nf docstore.NotFoundError
			if errors.As(err, &pf) || errors.As(err, &nf) {
				return zero, 0, VersionConflictError{Kind: d.kind, ID: id, Stored: existing.Base().Version, Incoming: in.Version}
			}
			return zero, 0, err
		}
		return incoming, outcomeUpdated, nil
	}

	if _, err := d.coll.Create(ctx, pk, id, body); err != nil {
		return zero, 0, StoreError{Kind: d.kind, ID: id, Err: err}
	}
	return incoming, outcomeCreated, nil
}
