package publish

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-github/v72/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote implements the git, repositories, and pull request services in memory,
// recording every mutation
type fakeRemote struct {
	defaultBranch string
	headSHA       string

	failCreateTree bool

	createdRefs    []string
	createdTrees   [][]*github.TreeEntry
	createdCommits []*github.Commit
	updatedRefs    []*github.Reference
	createdPRs     []*github.NewPullRequest
}

func (f *fakeRemote) Get(_ context.Context, _, _ string) (*github.Repository, *github.Response, error) {
	return &github.Repository{DefaultBranch: github.Ptr(f.defaultBranch)}, nil, nil
}

func (f *fakeRemote) GetRef(_ context.Context, _, _ string, ref string) (*github.Reference, *github.Response, error) {
	return &github.Reference{
		Ref:    github.Ptr(ref),
		Object: &github.GitObject{SHA: github.Ptr(f.headSHA)},
	}, nil, nil
}

func (f *fakeRemote) CreateRef(_ context.Context, _, _ string, ref *github.Reference) (*github.Reference, *github.Response, error) {
	f.createdRefs = append(f.createdRefs, ref.GetRef())
	return ref, nil, nil
}

func (f *fakeRemote) CreateTree(_ context.Context, _, _ string, _ string, entries []*github.TreeEntry) (*github.Tree, *github.Response, error) {
	if f.failCreateTree {
		return nil, nil, fmt.Errorf("tree creation refused")
	}
	f.createdTrees = append(f.createdTrees, entries)
	return &github.Tree{SHA: github.Ptr("tree-sha")}, nil, nil
}

func (f *fakeRemote) CreateCommit(_ context.Context, _, _ string, commit *github.Commit, _ *github.CreateCommitOptions) (*github.Commit, *github.Response, error) {
	f.createdCommits = append(f.createdCommits, commit)
	return &github.Commit{SHA: github.Ptr("commit-sha")}, nil, nil
}

func (f *fakeRemote) UpdateRef(_ context.Context, _, _ string, ref *github.Reference, _ bool) (*github.Reference, *github.Response, error) {
	f.updatedRefs = append(f.updatedRefs, ref)
	return ref, nil, nil
}

func (f *fakeRemote) Create(_ context.Context, _, _ string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error) {
	f.createdPRs = append(f.createdPRs, pull)
	return &github.PullRequest{Number: github.Ptr(42)}, nil, nil
}

func newTestPublisher(remote *fakeRemote) *Publisher {
	return &Publisher{
		git:   remote,
		repos: remote,
		pulls: remote,
		now:   func() time.Time { return time.UnixMilli(1700000000000) },
	}
}

func TestPublish_SingleBranchCommitAndPR(t *testing.T) {
	remote := &fakeRemote{defaultBranch: "main", headSHA: "head-sha"}
	publisher := newTestPublisher(remote)

	edits := []Edit{
		{Path: "src/a.go", Body: "package a\n"},
		{Path: "src/b.go", Body: "package b\n"},
	}

	pr, err := publisher.Publish(context.Background(), "octaviuslabs", "walter", edits, 7)
	require.NoError(t, err)
	assert.Equal(t, 42, pr.GetNumber())

	// One branch from the default-branch head
	require.Len(t, remote.createdRefs, 1)
	assert.Equal(t, "refs/heads/bot-generated-code-1700000000000", remote.createdRefs[0])

	// One tree containing every edit
	require.Len(t, remote.createdTrees, 1)
	entries := remote.createdTrees[0]
	require.Len(t, entries, 2)
	assert.Equal(t, "src/a.go", entries[0].GetPath())
	assert.Equal(t, "package a\n", entries[0].GetContent())
	assert.Equal(t, "src/b.go", entries[1].GetPath())

	// One commit parented on the previous head, and the branch advanced to it
	require.Len(t, remote.createdCommits, 1)
	require.Len(t, remote.createdCommits[0].Parents, 1)
	assert.Equal(t, "head-sha", remote.createdCommits[0].Parents[0].GetSHA())
	require.Len(t, remote.updatedRefs, 1)
	assert.Equal(t, "commit-sha", remote.updatedRefs[0].Object.GetSHA())

	// One PR from the new branch into the default branch, referencing the issue
	require.Len(t, remote.createdPRs, 1)
	created := remote.createdPRs[0]
	assert.Equal(t, "bot-generated-code-1700000000000", created.GetHead())
	assert.Equal(t, "main", created.GetBase())
	assert.Contains(t, created.GetTitle(), "#7")
	assert.Contains(t, created.GetBody(), "issue #7")
}

func TestPublish_NoIssueNumber(t *testing.T) {
	remote := &fakeRemote{defaultBranch: "main", headSHA: "head-sha"}
	publisher := newTestPublisher(remote)

	_, err := publisher.Publish(context.Background(), "a", "b", []Edit{{Path: "f.go", Body: "x"}}, 0)
	require.NoError(t, err)

	require.Len(t, remote.createdPRs, 1)
	assert.Equal(t, "Issue resolution", remote.createdPRs[0].GetTitle())
}

func TestPublish_EmptyBatch(t *testing.T) {
	publisher := newTestPublisher(&fakeRemote{defaultBranch: "main", headSHA: "head-sha"})

	_, err := publisher.Publish(context.Background(), "a", "b", nil, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublish)
}

func TestPublish_AbortsOnTreeFailure(t *testing.T) {
	remote := &fakeRemote{defaultBranch: "main", headSHA: "head-sha", failCreateTree: true}
	publisher := newTestPublisher(remote)

	_, err := publisher.Publish(context.Background(), "a", "b", []Edit{{Path: "f.go", Body: "x"}}, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublish)

	// No commit and no PR after the failed step; the branch ref is a known leftover
	assert.Empty(t, remote.createdCommits)
	assert.Empty(t, remote.createdPRs)
	assert.Len(t, remote.createdRefs, 1)
}
