package core

import (
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushFromGitHub(t *testing.T) {
	repo := &github.PushEventRepository{
		CloneURL: github.Ptr("https://github.com/org/repo.git"),
		HTMLURL:  github.Ptr("https://github.com/org/repo"),
		SSHURL:   github.Ptr("git@github.com:org/repo.git"),
	}
	after := "0123456789abcdef0123456789abcdef01234567"

	tests := []struct {
		name    string
		event   *github.PushEvent
		wantErr error
		check   func(t *testing.T, push *Push)
	}{
		{
			name: "branch push",
			event: &github.PushEvent{
				Ref:    github.Ptr("refs/heads/devel"),
				After:  github.Ptr(after),
				Repo:   repo,
				Pusher: &github.CommitAuthor{Name: github.Ptr("alice")},
			},
			check: func(t *testing.T, push *Push) {
				assert.Equal(t, "devel", push.Branch)
				assert.Empty(t, push.Event.Tag)
				assert.Equal(t, after, push.Event.Revision)
				assert.Equal(t, "alice", push.Event.Actor)
				assert.Equal(t, []string{
					"https://github.com/org/repo.git",
					"https://github.com/org/repo",
					"git@github.com:org/repo.git",
				}, push.RepoURLs)
			},
		},
		{
			name: "tag push with base ref",
			event: &github.PushEvent{
				Ref:     github.Ptr("refs/tags/1.2.0"),
				BaseRef: github.Ptr("refs/heads/master"),
				After:   github.Ptr(after),
				Repo:    repo,
				Sender:  &github.User{Login: github.Ptr("bob")},
			},
			check: func(t *testing.T, push *Push) {
				assert.Equal(t, "1.2.0", push.Event.Tag)
				assert.Equal(t, "master", push.Branch)
				assert.Equal(t, "bob", push.Event.Actor, "sender login is used without a pusher")
			},
		},
		{
			name: "tag push without base ref matches all branches",
			event: &github.PushEvent{
				Ref:   github.Ptr("refs/tags/v2"),
				After: github.Ptr(after),
				Repo:  repo,
			},
			check: func(t *testing.T, push *Push) {
				assert.Equal(t, "v2", push.Event.Tag)
				assert.Empty(t, push.Branch)
			},
		},
		{
			name:    "deleted ref",
			event:   &github.PushEvent{Ref: github.Ptr("refs/heads/x"), Deleted: github.Ptr(true), Repo: repo},
			wantErr: ErrRefDeleted,
		},
		{
			name:    "zero sha",
			event:   &github.PushEvent{Ref: github.Ptr("refs/heads/x"), After: github.Ptr(zeroSHA), Repo: repo},
			wantErr: ErrRefDeleted,
		},
		{
			name:  "missing repository",
			event: &github.PushEvent{Ref: github.Ptr("refs/heads/x"), After: github.Ptr(after)},
		},
		{
			name:  "unsupported ref",
			event: &github.PushEvent{Ref: github.Ptr("refs/notes/x"), After: github.Ptr(after), Repo: repo},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			push, err := PushFromGitHub(tt.event, []byte(`{"raw":true}`))
			if tt.check == nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, `{"raw":true}`, push.Event.Payload)
			tt.check(t, push)
		})
	}
}

func TestPushFromGitLab(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
		check   func(t *testing.T, push *Push)
	}{
		{
			name: "push",
			payload: `{"object_kind":"push","ref":"refs/heads/master","after":"abc","checkout_sha":"def",
				"user_name":"Alice","project":{"git_http_url":"https://gitlab.com/g/r.git","git_ssh_url":"git@gitlab.com:g/r.git"}}`,
			check: func(t *testing.T, push *Push) {
				assert.Equal(t, "master", push.Branch)
				assert.Equal(t, "def", push.Event.Revision)
				assert.Equal(t, "Alice", push.Event.Actor)
				assert.Equal(t, []string{"https://gitlab.com/g/r.git", "git@gitlab.com:g/r.git"}, push.RepoURLs)
			},
		},
		{
			name: "tag push falls back to after",
			payload: `{"object_kind":"tag_push","ref":"refs/tags/v1","after":"abc",
				"user_username":"alice","project":{"web_url":"https://gitlab.com/g/r"}}`,
			check: func(t *testing.T, push *Push) {
				assert.Equal(t, "v1", push.Event.Tag)
				assert.Empty(t, push.Branch)
				assert.Equal(t, "abc", push.Event.Revision)
				assert.Equal(t, "alice", push.Event.Actor)
			},
		},
		{
			name:    "unsupported kind",
			payload: `{"object_kind":"merge_request"}`,
		},
		{
			name:    "deleted branch",
			payload: `{"object_kind":"push","ref":"refs/heads/x","after":"` + zeroSHA + `"}`,
			wantErr: ErrRefDeleted,
		},
		{
			name:    "no repository url",
			payload: `{"object_kind":"push","ref":"refs/heads/x","after":"abc"}`,
		},
		{
			name:    "malformed body",
			payload: `{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			push, err := PushFromGitLab([]byte(tt.payload))
			if tt.check == nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, push)
		})
	}
}
