package client

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/catalogd/registry/internal/model"
)

// KindClient works with the groups of one kind (G) and their nested
// resources (R)
type KindClient[G, R any] struct {
	client   *Client
	kind     string
	resource string
}

// Content is the payload of a version
type Content struct {
	// Body is nil when the version points elsewhere
	Body        []byte
	ContentType string
	// Location is set when the version content lives at an external URL
	Location string
	// Meta carries the version metadata sent as headers
	Meta http.Header
}

// Name returns the kind name
func (k *KindClient[G, R]) Name() string {
	return k.kind
}

// ListGroups returns every group of the kind keyed by id
func (k *KindClient[G, R]) ListGroups(ctx context.Context) (map[string]*G, error) {
	var out map[string]*G
	err := k.client.doJSON(ctx, http.MethodGet, k.client.registryURL(nil, k.kind), nil, &out, "list groups")
	return out, err
}

// GetGroup returns one group
func (k *KindClient[G, R]) GetGroup(ctx context.Context, id string) (*G, error) {
	out := new(G)
	err := k.client.doJSON(ctx, http.MethodGet, k.client.registryURL(nil, k.kind, id), nil, out, "get group")
	return out, err
}

// PutGroup creates or updates a group and the resources it embeds
func (k *KindClient[G, R]) PutGroup(ctx context.Context, id string, group *G) (*G, error) {
	out := new(G)
	err := k.client.doJSON(ctx, http.MethodPut, k.client.registryURL(nil, k.kind, id), group, out, "put group")
	return out, err
}

// PutGroups upserts several groups at once
func (k *KindClient[G, R]) PutGroups(ctx context.Context, groups map[string]*G) (map[string]*G, error) {
	var out map[string]*G
	err := k.client.doJSON(ctx, http.MethodPut, k.client.registryURL(nil, k.kind), groups, &out, "put groups")
	return out, err
}

// DeleteGroup deletes a group with its resources and returns what was removed
func (k *KindClient[G, R]) DeleteGroup(ctx context.Context, id string, opts ...DeleteOption) (*G, error) {
	out := new(G)
	err := k.client.doJSON(ctx, http.MethodDelete, k.client.registryURL(deleteQuery(opts), k.kind, id), nil, out, "delete group")
	return out, err
}

// DeleteGroups deletes the listed groups, skipping missing ones
func (k *KindClient[G, R]) DeleteGroups(ctx context.Context, ids ...string) (map[string]*G, error) {
	body := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		body[id] = struct{}{}
	}
	var out map[string]*G
	err := k.client.doJSON(ctx, http.MethodDelete, k.client.registryURL(nil, k.kind), body, &out, "delete groups")
	return out, err
}

// ListResources returns the resources of a group keyed by id
func (k *KindClient[G, R]) ListResources(ctx context.Context, groupID string) (map[string]*R, error) {
	var out map[string]*R
	err := k.client.doJSON(ctx, http.MethodGet, k.client.registryURL(nil, k.kind, groupID, k.resource), nil, &out, "list resources")
	return out, err
}

// PutResource creates or updates a resource, creating its group if needed
func (k *KindClient[G, R]) PutResource(ctx context.Context, groupID, id string, resource *R) (*R, error) {
	out := new(R)
	err := k.client.doJSON(ctx, http.MethodPut, k.client.registryURL(nil, k.kind, groupID, k.resource, id), resource, out, "put resource")
	return out, err
}

// DeleteResource deletes a resource and returns what was removed
func (k *KindClient[G, R]) DeleteResource(ctx context.Context, groupID, id string, opts ...DeleteOption) (*R, error) {
	out := new(R)
	err := k.client.doJSON(ctx, http.MethodDelete, k.client.registryURL(deleteQuery(opts), k.kind, groupID, k.resource, id), nil, out, "delete resource")
	return out, err
}

// GetLatestVersion returns the metadata of the latest version
func (k *KindClient[G, R]) GetLatestVersion(ctx context.Context, groupID, id string) (*model.ResourceVersion, error) {
	out := &model.ResourceVersion{}
	target := k.client.registryURL(url.Values{"meta": {"true"}}, k.kind, groupID, k.resource, id)
	err := k.client.doJSON(ctx, http.MethodGet, target, nil, out, "get latest version")
	return out, err
}

// GetVersion returns the metadata of one version
func (k *KindClient[G, R]) GetVersion(ctx context.Context, groupID, id, versionID string) (*model.ResourceVersion, error) {
	out := &model.ResourceVersion{}
	target := k.client.registryURL(url.Values{"meta": {"true"}}, k.kind, groupID, k.resource, id, "versions", versionID)
	err := k.client.doJSON(ctx, http.MethodGet, target, nil, out, "get version")
	return out, err
}

// ListVersions returns every version of a resource keyed by version id
func (k *KindClient[G, R]) ListVersions(ctx context.Context, groupID, id string) (map[string]*model.ResourceVersion, error) {
	var out map[string]*model.ResourceVersion
	target := k.client.registryURL(nil, k.kind, groupID, k.resource, id, "versions")
	err := k.client.doJSON(ctx, http.MethodGet, target, nil, &out, "list versions")
	return out, err
}

// PostVersion uploads a new version. Without a blob store on the server a
// JSON body is the inline content and anything else is refused; with one,
// a JSON body is the version document and anything else is uploaded as is
// with the metadata taken from opts.
func (k *KindClient[G, R]) PostVersion(ctx context.Context, groupID, id string, body io.Reader, opts ...UploadOption) (*model.ResourceVersion, error) {
	options := &UploadOptions{ContentType: "application/json"}
	for _, opt := range opts {
		opt(options)
	}

	header := http.Header{}
	header.Set("Content-Type", options.ContentType)
	for name, value := range options.Headers {
		header.Set(name, encodeHeader(value))
	}
	if options.Description != "" {
		header.Set("resource-description", encodeHeader(options.Description))
	}
	if options.CreatedBy != "" {
		header.Set("resource-createdby", encodeHeader(options.CreatedBy))
	}

	target := k.client.registryURL(nil, k.kind, groupID, k.resource, id, "versions")
	resp, err := k.client.do(ctx, k.client.httpClient, http.MethodPost, target, body, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &model.ResourceVersion{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, wrapError(err, "post version")
	}
	return out, nil
}

// GetContent returns the content of a version; an empty versionID selects
// the latest one. External content is not followed: its URL is returned
// in Location.
func (k *KindClient[G, R]) GetContent(ctx context.Context, groupID, id, versionID string) (*Content, error) {
	segments := []string{k.kind, groupID, k.resource, id}
	if versionID != "" {
		segments = append(segments, "versions", versionID)
	}

	hc := *k.client.httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := k.client.do(ctx, &hc, http.MethodGet, k.client.registryURL(nil, segments...), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content := &Content{
		ContentType: resp.Header.Get("Content-Type"),
		Meta:        decodeHeaders(resp.Header),
	}
	if resp.StatusCode == http.StatusTemporaryRedirect {
		content.Location = resp.Header.Get("Location")
		return content, nil
	}

	content.Body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(err, "get content")
	}
	return content, nil
}

func deleteQuery(opts []DeleteOption) url.Values {
	options := &DeleteOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Version == nil {
		return nil
	}
	return url.Values{"version": {strconv.FormatInt(*options.Version, 10)}}
}

// encodeHeader Q-encodes values that are not plain ASCII
func encodeHeader(value string) string {
	return mime.QEncoding.Encode("utf-8", value)
}

// decodeHeaders returns the resource-* headers with encoded words decoded
func decodeHeaders(h http.Header) http.Header {
	dec := new(mime.WordDecoder)
	out := http.Header{}
	for name, values := range h {
		if !strings.HasPrefix(http.CanonicalHeaderKey(name), "Resource-") {
			continue
		}
		for _, v := range values {
			if decoded, err := dec.DecodeHeader(v); err == nil {
				v = decoded
			}
			out.Add(name, v)
		}
	}
	return out
}
