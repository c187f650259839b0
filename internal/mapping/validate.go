// Package mapping checks webhook mapping definitions against the catalog of
// known forges, namespaces and build service projects before they are stored.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/gitutil"
)

// ErrInvalid wraps every rule violation reported by Validate.
var ErrInvalid = errors.New("invalid mapping")

// Namespace is a known path on a forge, e.g. github.com + "mer-tools".
type Namespace struct {
	Netloc string
	Path   string
}

// ProjectRules is a project together with what it accepts mappings from.
type ProjectRules struct {
	core.Project
	Groups     []string
	Namespaces []Namespace
}

// Owner is the user a mapping is created for.
type Owner struct {
	Username  string
	Superuser bool
	Groups    []string
}

// Rules are the deployment-wide switches.
type Rules struct {
	// ServiceWhitelist rejects repositories on forges that are not registered.
	ServiceWhitelist bool
	// StrictMappings applies the per-project namespace and group rules and
	// confines regular users to their home projects.
	StrictMappings bool
}

// Catalog answers the lookups Validate needs.
type Catalog interface {
	MappingExists(ctx context.Context, excludeID, buildServiceID int64, project, pkg string) (bool, error)
	ServiceExists(ctx context.Context, netloc string) (bool, error)
	NamespaceExists(ctx context.Context, ns Namespace) (bool, error)
	// ProjectRules returns core.ErrNotFound for unknown projects.
	ProjectRules(ctx context.Context, name string, buildServiceID int64) (*ProjectRules, error)
}

// Validate trims m in place and checks it. The first violated rule is
// returned wrapped in ErrInvalid; lookup failures are returned as is.
func Validate(ctx context.Context, cat Catalog, rules Rules, m *core.WebhookMapping, owner Owner) error {
	m.RepoURL = strings.TrimSpace(m.RepoURL)
	m.Branch = strings.TrimSpace(m.Branch)
	m.Project = strings.TrimSpace(m.Project)
	m.Package = strings.TrimSpace(m.Package)

	if m.RepoURL == "" {
		return fmt.Errorf("%w: repository url is required", ErrInvalid)
	}

	exists, err := cat.MappingExists(ctx, m.ID, m.BuildService.ID, m.Project, m.Package)
	if err != nil {
		return fmt.Errorf("failed to look up existing mappings: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: a mapping object with the same parameters already exists", ErrInvalid)
	}

	loc, err := gitutil.SplitRepoURL(m.RepoURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	known, err := cat.ServiceExists(ctx, loc.Netloc)
	if err != nil {
		return fmt.Errorf("failed to look up service %s: %w", loc.Netloc, err)
	}
	if rules.ServiceWhitelist && !known {
		return fmt.Errorf("%w: %s is not an allowed service", ErrInvalid, loc.Netloc)
	}

	project, err := cat.ProjectRules(ctx, m.Project, m.BuildService.ID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		project = nil
	case err != nil:
		return fmt.Errorf("failed to look up project %s: %w", m.Project, err)
	}

	ns := Namespace{Netloc: loc.Netloc, Path: loc.Namespace}
	if project != nil {
		if !project.Allowed {
			return fmt.Errorf("%w: project %s does not allow mappings", ErrInvalid, project)
		}
		if project.Official {
			nsKnown := false
			if known {
				if nsKnown, err = cat.NamespaceExists(ctx, ns); err != nil {
					return fmt.Errorf("failed to look up namespace %s/%s: %w", ns.Netloc, ns.Path, err)
				}
			}
			if !nsKnown {
				return fmt.Errorf("%w: official project %s allows mapping from known service namespaces only", ErrInvalid, project)
			}
		}
	}

	if !rules.StrictMappings {
		return nil
	}

	if project != nil {
		if len(project.Namespaces) > 0 && !slices.Contains(project.Namespaces, ns) {
			return fmt.Errorf("%w: repository url is not allowed by %s's strict rules", ErrInvalid, project)
		}
		if !sharesGroup(project.Groups, owner.Groups) {
			return fmt.Errorf("%w: mapping to %s not allowed for %s", ErrInvalid, project, owner.Username)
		}
	}
	if !owner.Superuser && !strings.HasPrefix(m.Project, "home:"+owner.Username) {
		return fmt.Errorf("%w: mapping to %s not allowed for %s", ErrInvalid, m.Project, owner.Username)
	}
	return nil
}

func sharesGroup(a, b []string) bool {
	for _, g := range a {
		if slices.Contains(b, g) {
			return true
		}
	}
	return false
}
