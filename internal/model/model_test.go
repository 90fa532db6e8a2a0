package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_ExtensionsRoundTrip(t *testing.T) {
	input := `{"id":"orders","version":3,"description":"order events","format":"CloudEvents/1.0","labels":{"team":"payments"},"createdOn":"2024-05-01T10:00:00Z"}`

	var r Resource
	require.NoError(t, json.Unmarshal([]byte(input), &r))

	assert.Equal(t, "orders", r.ID)
	assert.Equal(t, int64(3), r.Version)
	assert.Equal(t, "order events", r.Description)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), r.CreatedOn.UTC())
	assert.Equal(t, "CloudEvents/1.0", r.ExtensionString("format"))
	require.Contains(t, r.Extensions, "labels")

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestResource_KnownFieldsWinOverExtensions(t *testing.T) {
	r := Resource{ID: "a", Version: 1, Extensions: map[string]json.RawMessage{"id": json.RawMessage(`"b"`)}}

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","version":1}`, string(out))
}

func TestResource_EpochAlias(t *testing.T) {
	var r Resource
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","epoch":7}`), &r))
	assert.Equal(t, int64(7), r.Version)
	assert.NotContains(t, r.Extensions, "epoch")

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","epoch":7,"version":9}`), &r))
	assert.Equal(t, int64(9), r.Version)
}

func TestResource_StripSystemProperties(t *testing.T) {
	var r Resource
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","version":1,"_etag":"\"1\"","_ts":12,"format":"x"}`), &r))
	require.Contains(t, r.Extensions, "_etag")

	r.StripSystemProperties()

	assert.NotContains(t, r.Extensions, "_etag")
	assert.NotContains(t, r.Extensions, "_ts")
	assert.Equal(t, "x", r.ExtensionString("format"))
}

func TestResource_SetExtension(t *testing.T) {
	var r Resource
	require.NoError(t, r.SetExtension("usage", "producer"))
	assert.Equal(t, "producer", r.ExtensionString("usage"))
	assert.Error(t, r.SetExtension("version", 2))
}

func TestSchemaGroup_NestedCollections(t *testing.T) {
	input := `{
		"id": "payments",
		"version": 1,
		"schemas": {
			"order": {
				"id": "order",
				"version": 2,
				"format": "JsonSchema/draft-07",
				"versions": {
					"0": {"id": "0", "version": 0, "schema": {"type": "object"}},
					"1": {"id": "1", "version": 1, "schemaUrl": "https://example.com/order.json"}
				}
			}
		}
	}`

	var g SchemaGroup
	require.NoError(t, json.Unmarshal([]byte(input), &g))

	require.Contains(t, g.Schemas, "order")
	schema := g.Schemas["order"]
	assert.Equal(t, "JsonSchema/draft-07", schema.Format())
	require.Len(t, schema.VersionMap(), 2)
	assert.JSONEq(t, `{"type":"object"}`, string(schema.Versions["0"].Schema))
	assert.Equal(t, "https://example.com/order.json", schema.Versions["1"].SchemaURL)
	assert.Nil(t, g.Extensions, "collections are not extensions")

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestEndpoint_Accessors(t *testing.T) {
	var e Endpoint
	require.NoError(t, json.Unmarshal([]byte(`{"id":"ep","version":1,"usage":"producer","config":{"protocol":"kafka"},"definitions":{"d":{"id":"d","version":1}}}`), &e))

	assert.Equal(t, "producer", e.Usage())
	assert.JSONEq(t, `{"protocol":"kafka"}`, string(e.Config()))
	require.Contains(t, e.Definitions, "d")

	var entity Entity = &e
	assert.Equal(t, "ep", entity.Base().ID)
}

func TestDefinitionGroup_EmptyCollectionOmitted(t *testing.T) {
	out, err := json.Marshal(DefinitionGroup{Resource: Resource{ID: "g", Version: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g","version":1}`, string(out))
}

func versionsOf(ids ...string) map[string]*ResourceVersion {
	m := make(map[string]*ResourceVersion, len(ids))
	for _, id := range ids {
		m[id] = &ResourceVersion{Resource: Resource{ID: id}}
	}
	return m
}

func TestLatestVersionID(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		want   string
		wantOK bool
	}{
		{"empty", nil, "", false},
		{"single", []string{"0"}, "0", true},
		{"numeric not lexical", []string{"1", "2", "10"}, "10", true},
		{"numeric beats text", []string{"beta", "3"}, "3", true},
		{"text only", []string{"alpha", "beta"}, "beta", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LatestVersionID(versionsOf(tt.ids...))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextVersionID(t *testing.T) {
	assert.Equal(t, "0", NextVersionID(nil))
	assert.Equal(t, "0", NextVersionID(versionsOf("draft")))
	assert.Equal(t, "1", NextVersionID(versionsOf("0")))
	assert.Equal(t, "11", NextVersionID(versionsOf("1", "2", "10")))
}
