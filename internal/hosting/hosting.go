// SPDX-License-Identifier: MPL-2.0

// Package hosting turns repository URLs into web URLs of their hosting
// service and builds the commit, compare and release-draft links derived
// from them.
package hosting

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

const (
	// DefaultCommitURL is the commit link template.
	DefaultCommitURL = "{url}/commit/{sha}"
	// DefaultCompareURL is the compare link template.
	DefaultCompareURL = "{url}/compare/{diff}"

	// GitHub is the only host release drafts are opened for.
	GitHub = "github.com"
)

var (
	// ErrInvalidURL is the sentinel error wrapped by InvalidURLError.
	ErrInvalidURL = errors.New("invalid git url")

	// SupportedHosts enable commit links, compare links and release drafts
	// unless the user configured them explicitly.
	SupportedHosts = []string{"github.com", "gitee.com"}

	allowedProtocols = []string{"git+ssh", "ssh", "git+http", "http", "git+https", "https", "git"}

	// shortcuts are the "provider:owner/repo" forms accepted by package managers.
	shortcuts = map[string]string{
		"github":    "github.com",
		"gitlab":    "gitlab.com",
		"bitbucket": "bitbucket.org",
		"gitee":     "gitee.com",
	}
)

type (
	// Repository is a parsed repository location.
	Repository struct {
		// Host includes a non-default port.
		Host string
		// WebURL is the browsable URL without trailing ".git" or "/".
		WebURL string
	}

	// InvalidURLError is returned for URLs that are not git remotes.
	InvalidURLError struct {
		URL string
	}
)

// Error implements the error interface.
func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("%s is not a valid git url", e.URL)
}

// Unwrap returns ErrInvalidURL.
func (e *InvalidURLError) Unwrap() error { return ErrInvalidURL }

// Parse accepts the URL forms found in package.json "repository" fields and
// git remotes: http(s), ssh, git, git+* URLs, scp-like "git@host:owner/repo"
// addresses and "github:owner/repo" or "owner/repo" shortcuts.
func Parse(raw string) (Repository, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Repository{}, &InvalidURLError{URL: raw}
	}
	raw = expandShortcut(raw)

	ep, err := transport.NewEndpoint(raw)
	if err != nil || ep.Host == "" || !slices.Contains(allowedProtocols, ep.Protocol) {
		return Repository{}, &InvalidURLError{URL: raw}
	}

	host := ep.Host
	if ep.Port != 0 && !isDefaultPort(ep.Protocol, ep.Port) {
		host += ":" + strconv.Itoa(ep.Port)
	}

	scheme := "https"
	if strings.HasSuffix(ep.Protocol, "http") {
		scheme = "http"
	}
	p := "/" + strings.TrimPrefix(ep.Path, "/")
	p = strings.TrimSuffix(strings.TrimSuffix(p, ".git"), "/")

	return Repository{Host: host, WebURL: scheme + "://" + host + p}, nil
}

// Supported reports whether links are enabled for the host by default.
func (r Repository) Supported() bool {
	return slices.Contains(SupportedHosts, r.Host)
}

// IsGitHub reports whether the repository is hosted on github.com.
func (r Repository) IsGitHub() bool {
	return r.Host == GitHub
}

// CommitURL expands template (DefaultCommitURL when empty) for the repository.
// The result still contains the {sha} placeholder.
func (r Repository) CommitURL(template string) string {
	if template == "" {
		template = DefaultCommitURL
	}
	return strings.ReplaceAll(template, "{url}", r.WebURL)
}

// CompareURL expands template (DefaultCompareURL when empty) for the
// repository. The result still contains the {diff} placeholder.
func (r Repository) CompareURL(template string) string {
	if template == "" {
		template = DefaultCompareURL
	}
	return strings.ReplaceAll(template, "{url}", r.WebURL)
}

// ReleaseDraftURL returns the "new release" page prefilled with tag, title,
// body and the pre-release flag.
func (r Repository) ReleaseDraftURL(tag, body string, prerelease bool) string {
	q := url.Values{}
	q.Set("tag", tag)
	q.Set("title", tag)
	q.Set("prerelease", strconv.FormatBool(prerelease))
	q.Set("body", body)
	return r.WebURL + "/releases/new?" + q.Encode()
}

func expandShortcut(raw string) string {
	if strings.Contains(raw, "://") || strings.Contains(raw, "@") {
		return raw
	}
	if provider, rest, ok := strings.Cut(raw, ":"); ok {
		if host, known := shortcuts[provider]; known {
			return "https://" + host + "/" + rest
		}
		return raw
	}
	// "owner/repo" defaults to GitHub.
	if parts := strings.Split(raw, "/"); len(parts) == 2 && parts[0] != "" && parts[1] != "" && !strings.HasPrefix(raw, ".") {
		return "https://github.com/" + raw
	}
	return raw
}

func isDefaultPort(protocol string, port int) bool {
	switch strings.TrimPrefix(protocol, "git+") {
	case "http":
		return port == 80
	case "https":
		return port == 443
	case "ssh":
		return port == 22
	case "git":
		return port == 9418
	}
	return false
}
