// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/invowk/rc/internal/version"
)

const (
	// NPM is the public npm registry.
	NPM = "https://registry.npmjs.org"
	// YarnMirror is yarn's mirror of the public registry.
	YarnMirror = "https://registry.yarnpkg.com"

	// abbreviatedMediaType requests the compact install document.
	abbreviatedMediaType = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

	// maxJSONResponseBytes is the upper bound on a metadata document (50 MB).
	// Long-lived packages carry thousands of versions.
	maxJSONResponseBytes = 50 << 20
)

// ErrUnexpectedStatus is returned for registry responses other than 200 and 404.
var ErrUnexpectedStatus = errors.New("unexpected registry status")

type (
	// Metadata is what a release needs to know about a published package.
	Metadata struct {
		Name string
		// Versions are every published version, in registry order.
		Versions []string
		// DistTags maps dist-tags to versions.
		DistTags map[string]string
		// Published is false when the registry does not know the package.
		Published bool
	}

	// packument is the wire format of the abbreviated metadata document.
	packument struct {
		Name     string                     `json:"name"`
		DistTags map[string]string          `json:"dist-tags"`
		Versions map[string]json.RawMessage `json:"versions"`
	}

	// Client fetches package metadata from npm-compatible registries.
	Client struct {
		httpClient *http.Client
		token      string // Optional bearer token, only sent to tokenHost
		tokenHost  string
		userAgent  string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithToken sets a bearer token that is only attached to requests for the
// host of registryURL.
func WithToken(registryURL, token string) ClientOption {
	return func(cl *Client) {
		if u, err := url.Parse(registryURL); err == nil {
			cl.tokenHost = u.Host
			cl.token = token
		}
	}
}

// EnvToken returns the token option for the registry and token named by the
// npm environment (NPM_CONFIG_REGISTRY, then NODE_AUTH_TOKEN or NPM_TOKEN).
// Without a token the option does nothing.
func EnvToken(env []string) ClientOption {
	vars := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[strings.ToUpper(k)] = v
		}
	}
	token := cmp.Or(vars["NODE_AUTH_TOKEN"], vars["NPM_TOKEN"])
	if token == "" {
		return func(*Client) {}
	}
	return WithToken(Normalize(vars["NPM_CONFIG_REGISTRY"]), token)
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// NewClient creates a Client using http.DefaultClient.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  "rc/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metadata fetches the package document. An unknown package is not an error:
// it yields empty metadata with Published unset.
func (c *Client) Metadata(ctx context.Context, name, registryURL string) (Metadata, error) {
	md := Metadata{Name: name, DistTags: map[string]string{}}

	resp, err := c.get(ctx, packageURL(registryURL, name), abbreviatedMediaType)
	if err != nil {
		return md, fmt.Errorf("fetching %s metadata: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return md, nil
	default:
		return md, fmt.Errorf("fetching %s metadata: %w %d", name, ErrUnexpectedStatus, resp.StatusCode)
	}

	var doc packument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&doc); err != nil {
		return md, fmt.Errorf("fetching %s metadata: decoding response: %w", name, err)
	}

	md.Published = true
	for v := range doc.Versions {
		md.Versions = append(md.Versions, v)
	}
	slices.SortFunc(md.Versions, version.Compare)
	for tag, v := range doc.DistTags {
		md.DistTags[tag] = v
	}
	return md, nil
}

// DistTags fetches only the dist-tags of a package. An unknown package has none.
func (c *Client) DistTags(ctx context.Context, name, registryURL string) (map[string]string, error) {
	tags := map[string]string{}
	reqURL := Normalize(registryURL) + "/-/package/" + url.PathEscape(name) + "/dist-tags"

	resp, err := c.get(ctx, reqURL, "application/json")
	if err != nil {
		return tags, fmt.Errorf("fetching %s dist-tags: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return tags, nil
	default:
		return tags, fmt.Errorf("fetching %s dist-tags: %w %d", name, ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&tags); err != nil {
		return tags, fmt.Errorf("fetching %s dist-tags: decoding response: %w", name, err)
	}
	return tags, nil
}

func (c *Client) get(ctx context.Context, reqURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" && strings.EqualFold(req.URL.Host, c.tokenHost) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// packageURL builds the document URL; scoped names keep "@" and escape "/".
func packageURL(registryURL, name string) string {
	return Normalize(registryURL) + "/" + url.PathEscape(name)
}

// Normalize strips trailing slashes and maps the yarn mirror and an empty
// value to the public npm registry.
func Normalize(registryURL string) string {
	r := strings.TrimRight(strings.TrimSpace(registryURL), "/")
	if r == "" || r == "undefined" || r == YarnMirror {
		return NPM
	}
	return r
}

// IsNPM reports whether registryURL is the public npm registry.
func IsNPM(registryURL string) bool {
	return Normalize(registryURL) == NPM
}

// Scope returns the "@scope" part of a scoped package name, or "".
func Scope(name string) string {
	if !strings.HasPrefix(name, "@") {
		return ""
	}
	scope, _, _ := strings.Cut(name, "/")
	return scope
}
