// Package core defines the essential interfaces and data structures that form the
// backbone of the webhook launcher. The dispatch engine only sees the types in
// this package; storage, transport and the build service sit behind interfaces.
package core

import (
	"fmt"
	"time"
)

// BuildService is an OBS instance builds can be triggered on.
type BuildService struct {
	ID        int64  `db:"id"`
	Namespace string `db:"namespace"`
	APIURL    string `db:"apiurl"`
	WebURL    string `db:"weburl"`
}

func (b BuildService) String() string {
	return b.WebURL
}

// Project is a build service project that queue periods can be attached to.
type Project struct {
	ID             int64  `db:"id"`
	Name           string `db:"name"`
	BuildServiceID int64  `db:"build_service_id"`
	Official       bool   `db:"official"`
	Allowed        bool   `db:"allowed"`

	// WebURL of the owning build service, filled in by stores that join on it.
	WebURL string `db:"weburl"`
}

func (p Project) String() string {
	if p.WebURL == "" {
		return p.Name
	}
	return fmt.Sprintf("%s on %s", p.Name, p.WebURL)
}

// WebhookMapping binds a repository branch to a package in a build service project.
type WebhookMapping struct {
	ID      int64
	RepoURL string
	Branch  string
	Project string
	Package string
	Token   string
	// Debian and Dumb are "Y", "N" or empty.
	Debian  string
	Dumb    string
	Notify  bool
	Build   bool
	Comment string
	User    string

	BuildService BuildService
}

// Mapped reports whether the mapping points at a project and package.
func (m *WebhookMapping) Mapped() bool {
	return m.Project != "" && m.Package != ""
}

// RevOrHead returns the given revision, or the mapped branch when none is known.
func (m *WebhookMapping) RevOrHead(revision string) string {
	if revision != "" {
		return revision
	}
	return m.Branch
}

func (m *WebhookMapping) String() string {
	return fmt.Sprintf("%s/%s -> %s/%s", m.RepoURL, m.Branch, m.Project, m.Package)
}

// PackageURL is the web frontend link for the mapped package.
func (m *WebhookMapping) PackageURL() string {
	return fmt.Sprintf("%s/package/show?package=%s&project=%s", m.BuildService.WebURL, m.Package, m.Project)
}

// Fields returns the downstream field map shared by notify and build processes.
func (m *WebhookMapping) Fields() Fields {
	fields := Fields{
		FieldRepoURL: m.RepoURL,
		FieldBranch:  m.Branch,
	}
	if m.Project != "" {
		fields[FieldProject] = m.Project
		fields[FieldPackage] = m.Package
		fields[FieldEv] = map[string]any{FieldNamespace: m.BuildService.Namespace}
	}
	if m.Token != "" {
		fields[FieldToken] = m.Token
	}
	if m.Debian != "" {
		fields[FieldDebian] = m.Debian
	}
	if m.Dumb != "" {
		fields[FieldDumb] = m.Dumb
	}
	return fields
}

// RevisionState is the last seen revision of a mapping. There is exactly one
// per mapping; it is created lazily and never deleted by the engine.
type RevisionState struct {
	MappingID int64     `db:"mapping_id"`
	Revision  string    `db:"revision"`
	Tag       string    `db:"tag"`
	Handled   bool      `db:"handled"`
	Timestamp time.Time `db:"updated_at"`
	Payload   string    `db:"payload"`
}

func (s *RevisionState) String() string {
	return fmt.Sprintf("%s @ mapping %d", s.Revision, s.MappingID)
}

// Actor is a user acting on the system, either a pusher or an operator.
type Actor struct {
	Username  string
	Superuser bool
}

func (a *Actor) String() string {
	if a == nil {
		return ""
	}
	return a.Username
}
