package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// maxReserveAttempts bounds the retries of a version-id reservation that
// keeps losing etag races
const maxReserveAttempts = 5

// ResultKind tells the caller how to render a version read
type ResultKind int

const (
	// ResultMetadata renders Entity as JSON
	ResultMetadata ResultKind = iota
	// ResultRedirect points the caller at Location
	ResultRedirect
	// ResultInline returns Content as the body
	ResultInline
	// ResultBlob streams Blob as the body
	ResultBlob
)

// VersionResult is the outcome of reading a version
type VersionResult struct {
	Kind ResultKind
	// Entity is the version, or the resource itself when it has no versions
	Entity model.Entity
	// Version is nil when the resource has no versions
	Version     *model.ResourceVersion
	Location    string
	Content     []byte
	ContentType string
	Blob        *blob.Object
}

// Upload is the body of a version POST. Meta carries the attributes sent
// as resource-* headers.
type Upload struct {
	ContentType string
	Body        io.Reader
	// Size is the body length, -1 when unknown
	Size int64
	Meta *model.ResourceVersion
}

// ContentValidator checks inline content against the resource format
type ContentValidator func(format string, content []byte) error

// VersionEngine manages the version records of versioned resources and
// their content in the blob store.
type VersionEngine[R model.Versioned] struct {
	resources *ResourceEngine[R]
	blobs     blob.Store
	validate  ContentValidator
	opts      Options
	log       zerolog.Logger
}

// NewVersionEngine creates a version engine. blobs and validate may be nil;
// a non-nil blobs also makes resource deletes remove version content.
func NewVersionEngine[R model.Versioned](resources *ResourceEngine[R], blobs blob.Store, validate ContentValidator, opts Options) *VersionEngine[R] {
	if blobs != nil {
		resources.blobs = blobs
	}
	return &VersionEngine[R]{
		resources: resources,
		blobs:     blobs,
		validate:  validate,
		opts:      opts.withDefaults(),
		log:       logger.WithKind("registry.versions", resources.label),
	}
}

// HasBlobStore reports whether raw content can be stored
func (e *VersionEngine[R]) HasBlobStore() bool {
	return e.blobs != nil
}

func (e *VersionEngine[R]) span(ctx context.Context, op, groupID, id, vid string) (context.Context, func(error)) {
	return e.opts.span(ctx, e.resources.label, op,
		attribute.String(tracing.AttrGroupID, groupID),
		attribute.String(tracing.AttrResourceID, id),
		attribute.String(tracing.AttrVersionID, vid),
	)
}

func (e *VersionEngine[R]) read(ctx context.Context, base, groupID, id string) (R, error) {
	r, _, err := e.resources.docs.read(ctx, groupID, id)
	if err != nil {
		return r, err
	}
	return e.resources.decorate(base, groupID, r), nil
}

// GetLatestVersion reads the numerically highest version of a resource.
// A resource without versions is returned as metadata.
func (e *VersionEngine[R]) GetLatestVersion(ctx context.Context, base, groupID, id string, meta bool) (res *VersionResult, err error) {
	ctx, finish := e.span(ctx, "get_latest_version", groupID, id, "")
	defer func() { finish(err) }()

	r, err := e.read(ctx, base, groupID, id)
	if err != nil {
		return nil, err
	}

	vid, ok := model.LatestVersionID(r.VersionMap())
	if !ok {
		return &VersionResult{Kind: ResultMetadata, Entity: r}, nil
	}
	return e.resolve(ctx, groupID, id, r.VersionMap()[vid], meta)
}

// GetVersion reads one version of a resource
func (e *VersionEngine[R]) GetVersion(ctx context.Context, base, groupID, id, vid string, meta bool) (res *VersionResult, err error) {
	ctx, finish := e.span(ctx, "get_version", groupID, id, vid)
	defer func() { finish(err) }()

	r, err := e.read(ctx, base, groupID, id)
	if err != nil {
		return nil, err
	}

	v, ok := r.VersionMap()[vid]
	if !ok || v == nil {
		return nil, NotFoundError{Kind: "version", ID: vid}
	}
	return e.resolve(ctx, groupID, id, v, meta)
}

// resolve picks the representation of v: metadata when asked for, a
// redirect to external content, inline content, the stored blob, or
// metadata when there is no content at all
func (e *VersionEngine[R]) resolve(ctx context.Context, groupID, id string, v *model.ResourceVersion, meta bool) (*VersionResult, error) {
	switch {
	case meta:
		return &VersionResult{Kind: ResultMetadata, Entity: v, Version: v}, nil

	case v.SchemaURL != "":
		return &VersionResult{Kind: ResultRedirect, Entity: v, Version: v, Location: v.SchemaURL}, nil

	case len(v.Schema) > 0:
		return &VersionResult{Kind: ResultInline, Entity: v, Version: v, Content: v.Schema, ContentType: "application/json"}, nil

	case e.blobs != nil:
		key := blob.VersionKey(groupID, e.resources.name, id, v.ID)
		obj, err := e.blobs.Get(ctx, e.resources.groupKind, key)
		if err != nil {
			var nf blob.NotFoundError
			if errors.As(err, &nf) {
				return nil, NotFoundError{Kind: "version content", ID: v.ID}
			}
			return nil, err
		}
		ct := obj.ContentType
		if ct == "" {
			ct = v.ContentType
		}
		if ct == "" {
			ct = "application/octet-stream"
		}
		return &VersionResult{Kind: ResultBlob, Entity: v, Version: v, ContentType: ct, Blob: obj}, nil

	default:
		return &VersionResult{Kind: ResultMetadata, Entity: v, Version: v}, nil
	}
}

// ListVersions returns the versions of a resource keyed by version id
func (e *VersionEngine[R]) ListVersions(ctx context.Context, base, groupID, id string) (out map[string]*model.ResourceVersion, err error) {
	ctx, finish := e.span(ctx, "list_versions", groupID, id, "")
	defer func() { finish(err) }()

	r, err := e.read(ctx, base, groupID, id)
	if err != nil {
		return nil, err
	}
	out = r.VersionMap()
	if out == nil {
		out = map[string]*model.ResourceVersion{}
	}
	return out, nil
}

// DeleteVersion is not offered: versions are immutable history
func (e *VersionEngine[R]) DeleteVersion(ctx context.Context, base, groupID, id, vid string) error {
	return UnsupportedError{Operation: "deleting a version"}
}

// PostVersion appends a new version to a resource, creating the resource
// when it does not exist. The version id is reserved in the resource
// document before any blob upload; a failed upload releases it again.
func (e *VersionEngine[R]) PostVersion(ctx context.Context, base, groupID, id string, up Upload) (v *model.ResourceVersion, err error) {
	ctx, finish := e.span(ctx, "post_version", groupID, id, "")
	defer func() { finish(err) }()

	for field, value := range map[string]string{"group id": groupID, e.resources.name + " id": id} {
		if err := e.opts.checkID(field, value); err != nil {
			return nil, err
		}
	}

	version, content, upload, err := e.prepare(up)
	if err != nil {
		return nil, err
	}

	parent, created, err := e.reserve(ctx, groupID, id, version, content)
	if err != nil {
		return nil, err
	}
	vid := version.ID

	if upload {
		if err := e.upload(ctx, groupID, id, vid, up); err != nil {
			e.release(ctx, groupID, id, vid)
			return nil, err
		}
	}

	if created {
		e.opts.Metrics.RecordResourceCreated(e.resources.label)
	}
	e.resources.decorate(base, groupID, parent)
	e.opts.emit(ctx, notify.TypeCreated, version)

	e.log.Debug().
		Str("group_id", groupID).
		Str("id", id).
		Str("version_id", vid).
		Bool("blob", upload).
		Msg("Version created")
	return version, nil
}

// prepare builds the version record from the upload. content is the inline
// JSON to validate; upload reports whether the body goes to the blob store.
func (e *VersionEngine[R]) prepare(up Upload) (version *model.ResourceVersion, content []byte, upload bool, err error) {
	fromMeta := func() *model.ResourceVersion {
		v := &model.ResourceVersion{}
		if up.Meta != nil {
			*v = *up.Meta
		}
		return v
	}

	switch {
	case isJSONContentType(up.ContentType):
		data, err := io.ReadAll(up.Body)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to read body: %w", err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil, false, ValidationError{Reason: "empty version body"}
		}
		if !json.Valid(data) {
			return nil, nil, false, ValidationError{Reason: "body is not valid JSON"}
		}

		if e.blobs != nil {
			version = &model.ResourceVersion{}
			if err := json.Unmarshal(data, version); err != nil {
				return nil, nil, false, ValidationError{Reason: "malformed version: " + err.Error()}
			}
			content = version.Schema
		} else {
			version = fromMeta()
			version.Schema = json.RawMessage(data)
			content = data
		}

	case e.blobs == nil:
		return nil, nil, false, ValidationError{Reason: "content type " + up.ContentType + " requires a blob store"}

	default:
		version = fromMeta()
		version.ContentType = up.ContentType
		upload = true
	}

	version.StripSystemProperties()
	return version, content, upload, nil
}

// reserve assigns the next version id and writes version into the parent
// resource, retrying when a concurrent writer changed the document
func (e *VersionEngine[R]) reserve(ctx context.Context, groupID, id string, version *model.ResourceVersion, content []byte) (R, bool, error) {
	docs := e.resources.docs
	var zero R
	var stored int64

	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		now := e.opts.now()

		parent, etag, err := docs.read(ctx, groupID, id)
		exists := true
		if err != nil {
			var nf NotFoundError
			if !errors.As(err, &nf) {
				return zero, false, err
			}
			exists = false
			parent = docs.newDoc()
			b := parent.Base()
			b.ID = id
			b.GroupID = groupID
			b.CreatedOn = now
		}

		if len(content) > 0 && e.validate != nil {
			format := parent.Base().ExtensionString("format")
			if format == "" {
				format = version.ExtensionString("format")
			}
			if err := e.validate(format, content); err != nil {
				return zero, false, ValidationError{Reason: err.Error()}
			}
		}

		versions := parent.VersionMap()
		if versions == nil {
			versions = make(map[string]*model.ResourceVersion)
		}
		vid := model.NextVersionID(versions)
		n, _ := strconv.ParseInt(vid, 10, 64)

		version.ID = vid
		version.GroupID = groupID
		version.Version = n
		version.CreatedOn = now
		version.ModifiedOn = now
		versions[vid] = version
		parent.SetVersionMap(versions)

		pb := parent.Base()
		stored = pb.Version
		pb.Version++
		pb.ModifiedOn = now

		body, err := docs.encode(parent)
		if err != nil {
			return zero, false, err
		}

		if exists {
			_, err = docs.coll.Replace(ctx, groupID, id, body, etag)
		} else {
			_, err = docs.coll.Create(ctx, groupID, id, body)
		}
		if err == nil {
			return parent, !exists, nil
		}
		if !isWriteRace(err) {
			return zero, false, err
		}
		e.log.Debug().Err(err).Int("attempt", attempt).Str("id", id).Msg("Version reservation raced, retrying")
	}

	return zero, false, VersionConflictError{Kind: e.resources.name, ID: id, Stored: stored, Incoming: stored + 1}
}

// release removes a reserved version id after a failed upload
func (e *VersionEngine[R]) release(ctx context.Context, groupID, id, vid string) {
	docs := e.resources.docs
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		parent, etag, err := docs.read(ctx, groupID, id)
		if err != nil {
			e.log.Error().Err(err).Str("id", id).Str("version_id", vid).Msg("Failed to release version id")
			return
		}
		versions := parent.VersionMap()
		if _, ok := versions[vid]; !ok {
			return
		}
		delete(versions, vid)
		parent.SetVersionMap(versions)

		body, err := docs.encode(parent)
		if err != nil {
			e.log.Error().Err(err).Str("id", id).Str("version_id", vid).Msg("Failed to release version id")
			return
		}
		if _, err = docs.coll.Replace(ctx, groupID, id, body, etag); err == nil {
			e.log.Warn().Str("id", id).Str("version_id", vid).Msg("Released version id after failed upload")
			return
		}
		if !isWriteRace(err) {
			e.log.Error().Err(err).Str("id", id).Str("version_id", vid).Msg("Failed to release version id")
			return
		}
	}
	e.log.Error().Str("id", id).Str("version_id", vid).Msg("Gave up releasing version id")
}

func (e *VersionEngine[R]) upload(ctx context.Context, groupID, id, vid string, up Upload) error {
	body := &countingReader{r: up.Body}
	key := blob.VersionKey(groupID, e.resources.name, id, vid)
	if err := e.blobs.Put(ctx, e.resources.groupKind, key, body, up.Size, up.ContentType); err != nil {
		return fmt.Errorf("failed to upload content of version %s: %w", vid, err)
	}
	e.opts.Metrics.RecordBlobBytes(e.resources.label, body.n)
	return nil
}

func isWriteRace(err error) bool {
	var pf docstore.PreconditionFailedError
	var conflict docstore.ConflictError
	var nf docstore.NotFoundError
	return errors.As(err, &pf) || errors.As(err, &conflict) || errors.As(err, &nf)
}

// isJSONContentType matches application/json and any +json media type
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
