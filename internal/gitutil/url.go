// Package gitutil holds helpers for repository URLs as they arrive in push
// payloads and mapping definitions.
package gitutil

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

var ErrEmptyURL = errors.New("empty repository url")

// NormalizeRepoURL rewrites scp-like SSH remotes (git@host:org/repo.git) to
// git://host/org/repo.git so they can be parsed as URLs. Other URLs are
// returned trimmed but otherwise untouched.
func NormalizeRepoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	ep, err := transport.NewEndpoint(raw)
	if err != nil {
		return "", fmt.Errorf("invalid repository url %q: %w", raw, err)
	}
	if ep.Protocol == "ssh" && !strings.Contains(raw, "://") {
		return "git://" + ep.Host + "/" + strings.TrimPrefix(ep.Path, "/"), nil
	}
	return raw, nil
}

// RepoLocation is a repository URL split into the parts mapping rules
// look at.
type RepoLocation struct {
	// Netloc is the host, with the port when one is given.
	Netloc string
	// Namespace is the path without the repository name, e.g. "mer-core".
	Namespace string
	// Name is the last path element, e.g. "boss.git".
	Name string
}

// SplitRepoURL normalizes raw and splits it into netloc, namespace and name.
func SplitRepoURL(raw string) (RepoLocation, error) {
	normalized, err := NormalizeRepoURL(raw)
	if err != nil {
		return RepoLocation{}, err
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return RepoLocation{}, fmt.Errorf("invalid repository url %q: %w", raw, err)
	}

	p := strings.TrimSuffix(u.Path, "/")
	ns := strings.Trim(path.Dir(p), "/")
	if ns == "." {
		ns = ""
	}
	return RepoLocation{
		Netloc:    u.Host,
		Namespace: ns,
		Name:      path.Base(p),
	}, nil
}

// CandidateURLs returns the distinct non-empty urls in order, each followed
// by its normalized form when that differs.
func CandidateURLs(urls ...string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		add(u)
		if n, err := NormalizeRepoURL(u); err == nil {
			add(n)
		}
	}
	return out
}

// Locations splits every parsable url, dropping repeated netloc and
// namespace pairs.
func Locations(urls ...string) []RepoLocation {
	seen := make(map[string]struct{}, len(urls))
	var out []RepoLocation
	for _, u := range urls {
		loc, err := SplitRepoURL(u)
		if err != nil || loc.Netloc == "" {
			continue
		}
		key := loc.Netloc + "/" + loc.Namespace
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, loc)
	}
	return out
}
