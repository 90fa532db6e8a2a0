package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://localhost/registry"

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []*notify.Event
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(ctx context.Context, ev *notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) Events() []*notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*notify.Event(nil), s.events...)
}

func (s *recordingSink) Types() []string {
	var types []string
	for _, ev := range s.Events() {
		types = append(types, ev.Type)
	}
	return types
}

// testClock advances by one minute on every call
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type testBackend struct {
	docs  *docstore.Store
	blobs blob.Store
	// wrap replaces a container before the engines see it
	wrap func(name string, c docstore.Collection) docstore.Collection
}

func (b *testBackend) Collection(name string) docstore.Collection {
	var c docstore.Collection = b.docs.Container(name)
	if b.wrap != nil {
		c = b.wrap(name, c)
	}
	return c
}

func (b *testBackend) Blobs() blob.Store { return b.blobs }

type testEnv struct {
	reg     *Registry
	sink    *recordingSink
	backend *testBackend
	clock   *testClock
}

type envOption func(*testBackend, *Options)

func withBlobs(s blob.Store) envOption {
	return func(b *testBackend, _ *Options) { b.blobs = s }
}

func withWrap(wrap func(name string, c docstore.Collection) docstore.Collection) envOption {
	return func(b *testBackend, _ *Options) { b.wrap = wrap }
}

func withIDValidator(fn func(field, id string) error) envOption {
	return func(_ *testBackend, o *Options) { o.ValidateID = fn }
}

func setupRegistry(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	docs, err := docstore.Open(docstore.Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, docs.Start(context.Background()))
	t.Cleanup(func() { _ = docs.Stop(context.Background()) })

	sink := &recordingSink{}
	clock := &testClock{now: t0}
	backend := &testBackend{docs: docs}
	o := Options{
		Emitter:  notify.NewEmitter([]notify.Sink{sink}),
		PageSize: 2,
		Clock:    clock.Now,
	}
	for _, opt := range opts {
		opt(backend, &o)
	}

	return &testEnv{
		reg:     New(backend, nil, o),
		sink:    sink,
		backend: backend,
		clock:   clock,
	}
}

// faultyCollection overrides selected container operations
type faultyCollection struct {
	docstore.Collection
	createFunc  func(ctx context.Context, pk, id string, body []byte) (string, error)
	replaceFunc func(ctx context.Context, pk, id string, body []byte, ifMatch string) (string, error)
	deleteFunc  func(ctx context.Context, pk, id string) error
}

func (c *faultyCollection) Create(ctx context.Context, pk, id string, body []byte) (string, error) {
	if c.createFunc != nil {
		return c.createFunc(ctx, pk, id, body)
	}
	return c.Collection.Create(ctx, pk, id, body)
}

func (c *faultyCollection) Replace(ctx context.Context, pk, id string, body []byte, ifMatch string) (string, error) {
	if c.replaceFunc != nil {
		return c.replaceFunc(ctx, pk, id, body, ifMatch)
	}
	return c.Collection.Replace(ctx, pk, id, body, ifMatch)
}

func (c *faultyCollection) Delete(ctx context.Context, pk, id string) error {
	if c.deleteFunc != nil {
		return c.deleteFunc(ctx, pk, id)
	}
	return c.Collection.Delete(ctx, pk, id)
}

func schemaGroup(id string, version int64, schemas ...*model.Schema) *model.SchemaGroup {
	g := &model.SchemaGroup{Resource: model.Resource{ID: id, Version: version}}
	if len(schemas) > 0 {
		g.Schemas = make(map[string]*model.Schema, len(schemas))
		for _, s := range schemas {
			g.Schemas[s.ID] = s
		}
	}
	return g
}

func schema(id string, version int64) *model.Schema {
	return &model.Schema{Resource: model.Resource{ID: id, Version: version}}
}

func rawDocument(t *testing.T, c docstore.Collection, pk, id string) map[string]json.RawMessage {
	t.Helper()
	item, err := c.Read(context.Background(), pk, id)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(item.Body, &doc))
	return doc
}

func TestSelfURL(t *testing.T) {
	assert.Equal(t, "http://h/registry/groups/g1", SelfURL("http://h/registry/", "groups", "g1"))
	assert.Equal(t, "http://h/registry/groups/a%20b", SelfURL("http://h/registry", "groups", "a b"))
	assert.Equal(t, "http://h/registry", SelfURL("http://h/registry"))
}

func TestSourceOf(t *testing.T) {
	assert.Equal(t, "/registry/groups/g1", sourceOf("http://h/registry/groups/g1"))
	assert.Equal(t, "relative", sourceOf("relative"))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"not found", NotFoundError{Kind: "groups", ID: "g"}, "not_found"},
		{"conflict", VersionConflictError{Kind: "groups", ID: "g", Stored: 2, Incoming: 1}, "conflict"},
		{"validation", ValidationError{Reason: "bad"}, "invalid"},
		{"unsupported", UnsupportedError{Operation: "x"}, "invalid"},
		{"child wraps conflict", ChildError{Kind: "schemas", ID: "s", Err: VersionConflictError{}}, "invalid"},
		{"store wraps not found", StoreError{Kind: "groups", ID: "g", Err: NotFoundError{}}, "invalid"},
		{"other", assert.AnError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := VersionConflictError{Kind: "schemagroups", ID: "payments", Stored: 3, Incoming: 2}
	assert.Contains(t, err.Error(), "stored version 3")
	assert.Contains(t, err.Error(), "incoming version 2")

	child := ChildError{Kind: "schemas", ID: "order", Err: err}
	assert.ErrorIs(t, child, err)
	assert.Contains(t, child.Error(), "schemas order")
}

func TestNew_WiresContainers(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()

	_, err := env.reg.Endpoints.PutGroup(ctx, testBase, "ep", &model.Endpoint{
		Resource:    model.Resource{ID: "ep", Version: 1},
		Definitions: map[string]*model.Definition{"d": {Resource: model.Resource{ID: "d", Version: 1}}},
	})
	require.NoError(t, err)

	docs := env.backend.docs
	_, err = docs.Container("endpoints").Read(ctx, "ep", "ep")
	require.NoError(t, err)
	_, err = docs.Container("endpoints-definitions").Read(ctx, "ep", "d")
	require.NoError(t, err)

	// definition groups use their own containers
	_, err = env.reg.Groups.GetGroup(ctx, testBase, "ep")
	require.ErrorAs(t, err, &NotFoundError{})
	assert.Equal(t, "groups-definitions", env.reg.GroupDefinitions.resources.docs.coll.Name())
}
