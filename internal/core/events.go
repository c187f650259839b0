package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v73/github"
)

const (
	tagRefPrefix    = "refs/tags/"
	branchRefPrefix = "refs/heads/"
	zeroSHA         = "0000000000000000000000000000000000000000"
)

// ErrRefDeleted is returned for pushes that delete a branch or tag.
var ErrRefDeleted = errors.New("push deletes the ref")

// Event is a single change notification as seen by the dispatch engine.
type Event struct {
	// Tag is the pushed tag name, empty for branch updates.
	Tag string
	// Revision is the commit the push points at, if known.
	Revision string
	// Actor is the display name of whoever pushed.
	Actor string
	// Payload is the raw webhook body, stored opaquely.
	Payload string
	// ForcedBy is set when a privileged operator re-submits the event.
	ForcedBy *Actor
}

// Forced reports whether the event was re-submitted by an operator.
func (e *Event) Forced() bool {
	return e.ForcedBy != nil
}

// Push is a parsed repository push, ready for mapping lookup.
type Push struct {
	// RepoURLs holds the candidate repository URLs in lookup order.
	RepoURLs []string
	// Branch is empty when the push carries no branch information,
	// which matches every mapping of the repository.
	Branch string
	Event  Event
}

// PushFromGitHub transforms a GitHub push event into the internal Push. It acts
// as an anti-corruption layer: deletions and events without a repository are
// rejected before any mapping lookup happens.
func PushFromGitHub(event *github.PushEvent, payload []byte) (*Push, error) {
	if event.GetDeleted() || event.GetAfter() == zeroSHA {
		return nil, ErrRefDeleted
	}

	repo := event.GetRepo()
	if repo == nil {
		return nil, fmt.Errorf("repository information is missing from the event")
	}
	urls := nonEmpty(repo.GetCloneURL(), repo.GetHTMLURL(), repo.GetSSHURL(), repo.GetGitURL())
	if len(urls) == 0 {
		return nil, fmt.Errorf("repository URL is missing from the event")
	}

	tag, branch, err := splitRef(event.GetRef(), event.GetBaseRef())
	if err != nil {
		return nil, err
	}

	actor := event.GetPusher().GetName()
	if actor == "" {
		actor = event.GetSender().GetLogin()
	}

	return &Push{
		RepoURLs: urls,
		Branch:   branch,
		Event: Event{
			Tag:      tag,
			Revision: event.GetAfter(),
			Actor:    actor,
			Payload:  string(payload),
		},
	}, nil
}

type gitlabPush struct {
	ObjectKind   string `json:"object_kind"`
	Ref          string `json:"ref"`
	After        string `json:"after"`
	CheckoutSHA  string `json:"checkout_sha"`
	UserName     string `json:"user_name"`
	UserUsername string `json:"user_username"`
	Project      struct {
		GitHTTPURL string `json:"git_http_url"`
		GitSSHURL  string `json:"git_ssh_url"`
		WebURL     string `json:"web_url"`
	} `json:"project"`
}

// PushFromGitLab parses a GitLab push or tag_push hook body.
func PushFromGitLab(payload []byte) (*Push, error) {
	var event gitlabPush
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse gitlab push event: %w", err)
	}
	if event.ObjectKind != "push" && event.ObjectKind != "tag_push" {
		return nil, fmt.Errorf("unsupported gitlab event kind %q", event.ObjectKind)
	}
	if event.After == zeroSHA {
		return nil, ErrRefDeleted
	}

	urls := nonEmpty(event.Project.GitHTTPURL, event.Project.WebURL, event.Project.GitSSHURL)
	if len(urls) == 0 {
		return nil, fmt.Errorf("repository URL is missing from the event")
	}

	tag, branch, err := splitRef(event.Ref, "")
	if err != nil {
		return nil, err
	}

	revision := event.CheckoutSHA
	if revision == "" {
		revision = event.After
	}
	actor := event.UserName
	if actor == "" {
		actor = event.UserUsername
	}

	return &Push{
		RepoURLs: urls,
		Branch:   branch,
		Event: Event{
			Tag:      tag,
			Revision: revision,
			Actor:    actor,
			Payload:  string(payload),
		},
	}, nil
}

// splitRef returns the tag and branch named by a pushed ref. For tag pushes the
// branch comes from baseRef when the forge provides it.
func splitRef(ref, baseRef string) (tag, branch string, err error) {
	switch {
	case strings.HasPrefix(ref, tagRefPrefix):
		return strings.TrimPrefix(ref, tagRefPrefix), strings.TrimPrefix(baseRef, branchRefPrefix), nil
	case strings.HasPrefix(ref, branchRefPrefix):
		return "", strings.TrimPrefix(ref, branchRefPrefix), nil
	default:
		return "", "", fmt.Errorf("unsupported ref %q", ref)
	}
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
