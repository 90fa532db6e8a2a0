package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGroup_CreateThenRead(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	in := schemaGroup("payments", 1, schema("order", 1))
	require.NoError(t, in.SetExtension("owner", "team-a"))

	out, err := engine.PutGroup(ctx, testBase, "payments", in)
	require.NoError(t, err)
	assert.Equal(t, testBase+"/schemagroups/payments", out.Self)
	assert.Equal(t, t0.Add(time.Minute), out.CreatedOn)
	assert.Equal(t, out.CreatedOn, out.ModifiedOn)
	require.Contains(t, out.Schemas, "order")
	assert.Equal(t, testBase+"/schemagroups/payments/schemas/order", out.Schemas["order"].Self)
	assert.Equal(t, "payments", out.Schemas["order"].GroupID)

	got, err := engine.GetGroup(ctx, testBase, "payments")
	require.NoError(t, err)
	assert.Equal(t, "payments", got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "team-a", got.ExtensionString("owner"))
	assert.Equal(t, out.Self, got.Self)
	require.Contains(t, got.Schemas, "order")
	assert.Equal(t, out.Schemas["order"].Self, got.Schemas["order"].Self)
	assert.NotContains(t, got.Extensions, docstore.PropETag)
	assert.NotContains(t, got.Extensions, docstore.PropTimestamp)

	assert.Equal(t, []string{notify.TypeCreated}, env.sink.Types())
}

func TestPutGroup_StoresGroupWithoutChildrenOrSelf(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()

	_, err := env.reg.SchemaGroups.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 1, schema("order", 1)))
	require.NoError(t, err)

	doc := rawDocument(t, env.backend.docs.Container("schemagroups"), "payments", "payments")
	assert.NotContains(t, doc, "schemas")
	assert.NotContains(t, doc, "self")

	child := rawDocument(t, env.backend.docs.Container("schemagroups-schemas"), "payments", "order")
	assert.NotContains(t, child, "self")
	assert.JSONEq(t, `"payments"`, string(child["groupId"]))
}

func TestPutGroup_IdempotentReplay(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	first, err := engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 1, schema("order", 1)))
	require.NoError(t, err)

	item, err := env.backend.docs.Container("schemagroups").Read(ctx, "payments", "payments")
	require.NoError(t, err)

	// same version again: existing representation, no write, no event
	in := schemaGroup("payments", 1)
	in.Description = "ignored"
	second, err := engine.PutGroup(ctx, testBase, "payments", in)
	require.NoError(t, err)
	assert.Empty(t, second.Description)
	assert.Equal(t, first.ModifiedOn, second.ModifiedOn)
	assert.Contains(t, second.Schemas, "order")

	after, err := env.backend.docs.Container("schemagroups").Read(ctx, "payments", "payments")
	require.NoError(t, err)
	assert.Equal(t, item.ETag, after.ETag)

	assert.Len(t, env.sink.Events(), 1)
}

func TestPutGroup_OlderVersionConflicts(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 2))
	require.NoError(t, err)

	_, err = engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 1))
	var conflict VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.Stored)
	assert.Equal(t, int64(1), conflict.Incoming)

	assert.Len(t, env.sink.Events(), 1)
}

func TestPutGroup_NewerVersionUpdates(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	in := schemaGroup("payments", 1)
	in.CreatedBy = "alice"
	created, err := engine.PutGroup(ctx, testBase, "payments", in)
	require.NoError(t, err)

	update := schemaGroup("payments", 2, schema("order", 1))
	update.Description = "updated"
	update.CreatedBy = "mallory"
	updated, err := engine.PutGroup(ctx, testBase, "payments", update)
	require.NoError(t, err)

	assert.Equal(t, "updated", updated.Description)
	assert.Equal(t, created.CreatedOn, updated.CreatedOn)
	assert.Equal(t, "alice", updated.CreatedBy)
	assert.True(t, updated.ModifiedOn.After(created.ModifiedOn))
	assert.Contains(t, updated.Schemas, "order")

	assert.Equal(t, []string{notify.TypeCreated, notify.TypeChanged}, env.sink.Types())

	got, err := engine.GetGroup(ctx, testBase, "payments")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "updated", got.Description)
}

func TestPutGroup_ChildFailureAborts(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.Resources().Put(ctx, testBase, "payments", "b", schema("b", 5))
	require.NoError(t, err)

	in := schemaGroup("payments", 1, schema("a", 1), schema("b", 1), schema("c", 1))
	_, err = engine.PutGroup(ctx, testBase, "payments", in)

	var child ChildError
	require.ErrorAs(t, err, &child)
	assert.Equal(t, "b", child.ID)
	require.ErrorAs(t, err, &VersionConflictError{})

	// the group was never written, children before the failure stay written
	_, err = engine.GetGroup(ctx, testBase, "payments")
	require.ErrorAs(t, err, &NotFoundError{})

	resources, err := engine.Resources().List(ctx, testBase, "payments")
	require.NoError(t, err)
	assert.Contains(t, resources, "a")
	assert.NotContains(t, resources, "c")
	assert.Equal(t, int64(5), resources["b"].Version)

	// only the direct resource put notified
	assert.Len(t, env.sink.Events(), 1)
}

func TestPutGroup_ChildWritesDoNotNotify(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()

	_, err := env.reg.SchemaGroups.PutGroup(ctx, testBase, "payments",
		schemaGroup("payments", 1, schema("a", 1), schema("b", 1)))
	require.NoError(t, err)

	events := env.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "payments", events[0].Subject)
	assert.Equal(t, "/registry/schemagroups/payments", events[0].Source)

	var data model.SchemaGroup
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Len(t, data.Schemas, 2)
}

func TestPutGroup_StoreErrorOnCreate(t *testing.T) {
	env := setupRegistry(t, withWrap(func(name string, c docstore.Collection) docstore.Collection {
		if name != "schemagroups" {
			return c
		}
		return &faultyCollection{
			Collection: c,
			createFunc: func(ctx context.Context, pk, id string, body []byte) (string, error) {
				return "", docstore.InvalidDocumentError{ID: id, Reason: "too large"}
			},
		}
	}))

	_, err := env.reg.SchemaGroups.PutGroup(context.Background(), testBase, "payments", schemaGroup("payments", 1))
	var storeErr StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Contains(t, storeErr.Error(), "too large")
	assert.Equal(t, "invalid", statusOf(err))
	assert.Empty(t, env.sink.Events())
}

func TestPutGroup_ReplaceErrors(t *testing.T) {
	diskFull := errors.New("disk full")

	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"precondition failed is a conflict", docstore.PreconditionFailedError{Container: "schemagroups", ID: "payments"}, true},
		{"vanished document is a conflict", docstore.NotFoundError{Container: "schemagroups", ID: "payments"}, true},
		{"unexpected error propagates", diskFull, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRegistry(t, withWrap(func(name string, c docstore.Collection) docstore.Collection {
				if name != "schemagroups" {
					return c
				}
				return &faultyCollection{
					Collection: c,
					replaceFunc: func(ctx context.Context, pk, id string, body []byte, ifMatch string) (string, error) {
						return "", tt.err
					},
				}
			}))
			ctx := context.Background()

			_, err := env.reg.SchemaGroups.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 1))
			require.NoError(t, err)

			_, err = env.reg.SchemaGroups.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 2))
			require.Error(t, err)
			if tt.conflict {
				require.ErrorAs(t, err, &VersionConflictError{})
			} else {
				assert.ErrorIs(t, err, diskFull)
				assert.False(t, errors.As(err, &StoreError{}))
			}
			assert.Len(t, env.sink.Events(), 1)
		})
	}
}

func TestPutGroup_ConcurrentWriterLoses(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 1))
	require.NoError(t, err)

	// a concurrent writer slips in between our read and our replace
	raw := env.backend.docs.Container("schemagroups")
	engine.docs.coll = &faultyCollection{
		Collection: raw,
		replaceFunc: func(ctx context.Context, pk, id string, body []byte, ifMatch string) (string, error) {
			_, err := raw.Upsert(ctx, pk, id, []byte(`{"id":"payments","version":5}`))
			require.NoError(t, err)
			return raw.Replace(ctx, pk, id, body, ifMatch)
		},
	}

	_, err = engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 2))
	require.ErrorAs(t, err, &VersionConflictError{})

	got, err := engine.GetGroup(ctx, testBase, "payments")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
}

func TestPutGroup_InvalidID(t *testing.T) {
	env := setupRegistry(t, withIDValidator(func(field, id string) error {
		if id == "bad/id" {
			return fmt.Errorf("%s contains a slash", field)
		}
		return nil
	}))
	ctx := context.Background()

	_, err := env.reg.SchemaGroups.PutGroup(ctx, testBase, "", schemaGroup("", 1))
	require.ErrorAs(t, err, &ValidationError{})

	_, err = env.reg.SchemaGroups.PutGroup(ctx, testBase, "bad/id", schemaGroup("bad/id", 1))
	var invalid ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "contains a slash")

	_, err = env.reg.SchemaGroups.PutGroup(ctx, testBase, "ok", schemaGroup("ok", 1, schema("bad/id", 1)))
	require.ErrorAs(t, err, &ChildError{})
	require.ErrorAs(t, err, &ValidationError{})
}

func TestPutGroup_BodyIDIsOverridden(t *testing.T) {
	env := setupRegistry(t)

	out, err := env.reg.SchemaGroups.PutGroup(context.Background(), testBase, "payments", schemaGroup("other", 1))
	require.NoError(t, err)
	assert.Equal(t, "payments", out.ID)
	assert.Empty(t, out.GroupID)
}

func TestListGroups(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("g%d", i)
		_, err := engine.PutGroup(ctx, testBase, id, schemaGroup(id, 1, schema("s", 1)))
		require.NoError(t, err)
	}

	// undecodable documents are skipped
	_, err := env.backend.docs.Container("schemagroups").Create(ctx, "broken", "broken", []byte(`{"id":5}`))
	require.NoError(t, err)

	groups, err := engine.ListGroups(ctx, testBase)
	require.NoError(t, err)
	assert.Len(t, groups, 5)
	for id, g := range groups {
		assert.Equal(t, testBase+"/schemagroups/"+id, g.Self)
		assert.Nil(t, g.Schemas)
	}
}

func TestListGroups_Empty(t *testing.T) {
	env := setupRegistry(t)

	groups, err := env.reg.Groups.ListGroups(context.Background(), testBase)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGetGroup_IgnoresStoredChildren(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()

	_, err := env.backend.docs.Container("schemagroups").Create(ctx, "payments", "payments",
		[]byte(`{"id":"payments","version":1,"schemas":{"stale":{"id":"stale","version":1}}}`))
	require.NoError(t, err)

	got, err := env.reg.SchemaGroups.GetGroup(ctx, testBase, "payments")
	require.NoError(t, err)
	assert.Nil(t, got.Schemas)
}

func TestGetGroup_NotFound(t *testing.T) {
	env := setupRegistry(t)

	_, err := env.reg.SchemaGroups.GetGroup(context.Background(), testBase, "missing")
	var notFound NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "schemagroups", notFound.Kind)
	assert.Equal(t, "missing", notFound.ID)
}

func TestDeleteGroup_Cascades(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "payments",
		schemaGroup("payments", 1, schema("a", 1), schema("b", 1), schema("c", 1)))
	require.NoError(t, err)
	_, err = engine.PutGroup(ctx, testBase, "other", schemaGroup("other", 1, schema("a", 1)))
	require.NoError(t, err)

	deleted, err := engine.DeleteGroup(ctx, testBase, "payments", nil)
	require.NoError(t, err)
	assert.Len(t, deleted.Schemas, 3)

	_, err = engine.GetGroup(ctx, testBase, "payments")
	require.ErrorAs(t, err, &NotFoundError{})

	remaining, err := env.backend.docs.Container("schemagroups-schemas").Query("payments", 0).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	other, err := engine.GetGroup(ctx, testBase, "other")
	require.NoError(t, err)
	assert.Contains(t, other.Schemas, "a")

	events := env.sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, notify.TypeDeleted, events[2].Type)

	var snapshot model.SchemaGroup
	require.NoError(t, json.Unmarshal(events[2].Data, &snapshot))
	assert.Len(t, snapshot.Schemas, 3)
}

func TestDeleteGroup_Precondition(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 3))
	require.NoError(t, err)

	older := int64(2)
	_, err = engine.DeleteGroup(ctx, testBase, "payments", &older)
	var conflict VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(3), conflict.Stored)

	current := int64(3)
	_, err = engine.DeleteGroup(ctx, testBase, "payments", &current)
	require.NoError(t, err)
}

func TestDeleteGroup_NotFound(t *testing.T) {
	env := setupRegistry(t)

	_, err := env.reg.SchemaGroups.DeleteGroup(context.Background(), testBase, "missing", nil)
	require.ErrorAs(t, err, &NotFoundError{})
	assert.Empty(t, env.sink.Events())
}

func TestDeleteGroup_RaceWithOtherDelete(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "payments", schemaGroup("payments", 1))
	require.NoError(t, err)

	engine.docs.coll = &faultyCollection{
		Collection: engine.docs.coll,
		deleteFunc: func(ctx context.Context, pk, id string) error {
			return docstore.NotFoundError{Container: "schemagroups", PartitionKey: pk, ID: id}
		},
	}

	_, err = engine.DeleteGroup(ctx, testBase, "payments", nil)
	require.ErrorAs(t, err, &NotFoundError{})
	assert.Len(t, env.sink.Events(), 1)
}

func TestPutGroups_StopsAtFirstFailure(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "b", schemaGroup("b", 5))
	require.NoError(t, err)

	written, err := engine.PutGroups(ctx, testBase, map[string]*model.SchemaGroup{
		"a": schemaGroup("a", 1),
		"b": schemaGroup("b", 1),
		"c": schemaGroup("c", 1),
	})
	require.ErrorAs(t, err, &VersionConflictError{})
	assert.Contains(t, written, "a")
	assert.NotContains(t, written, "c")

	_, err = engine.GetGroup(ctx, testBase, "c")
	require.ErrorAs(t, err, &NotFoundError{})
}

func TestDeleteGroups(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	for _, id := range []string{"a", "b"} {
		_, err := engine.PutGroup(ctx, testBase, id, schemaGroup(id, 1))
		require.NoError(t, err)
	}

	deleted, err := engine.DeleteGroups(ctx, testBase, []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	_, err = engine.DeleteGroups(ctx, testBase, []string{"a", "missing"})
	require.ErrorAs(t, err, &NotFoundError{})
}

func TestDecodeGroups(t *testing.T) {
	engine := setupRegistry(t).reg.SchemaGroups

	groups, err := engine.DecodeGroups([]byte(`{"a":{"id":"a","version":1},"b":null}`))
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Contains(t, groups, "a")

	_, err = engine.DecodeGroups([]byte(`[1,2]`))
	require.ErrorAs(t, err, &ValidationError{})
}

func TestPartitionIsolation(t *testing.T) {
	env := setupRegistry(t)
	ctx := context.Background()
	engine := env.reg.SchemaGroups

	_, err := engine.PutGroup(ctx, testBase, "g1", schemaGroup("g1", 1, schema("s1", 1)))
	require.NoError(t, err)
	_, err = engine.PutGroup(ctx, testBase, "g10", schemaGroup("g10", 1, schema("s2", 1)))
	require.NoError(t, err)

	g1, err := engine.GetGroup(ctx, testBase, "g1")
	require.NoError(t, err)
	assert.Len(t, g1.Schemas, 1)
	assert.Contains(t, g1.Schemas, "s1")

	_, err = engine.Resources().Get(ctx, testBase, "g1", "s2")
	require.ErrorAs(t, err, &NotFoundError{})

	// the same resource id in two groups stays two documents
	_, err = engine.Resources().Put(ctx, testBase, "g1", "s2", schema("s2", 7))
	require.NoError(t, err)
	s2, err := engine.Resources().Get(ctx, testBase, "g10", "s2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s2.Version)
}
