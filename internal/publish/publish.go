// Package publish turns a batch of file edits into a branch, a single commit, and a pull
// request against the repository's default branch.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v72/github"
	"github.com/rs/zerolog/log"
)

// ErrPublish indicates that a GitHub mutation step failed while opening the pull request.
// The batch is aborted; partial state is never reported as success
var ErrPublish = errors.New("failed to publish pull request")

// Edit is one file change to include in the published commit
type Edit struct {
	// Path is the repository-relative file path, no leading slash
	Path string
	Body string
}

// Service interfaces narrowed to the calls the publisher makes. The corresponding go-github
// services satisfy these directly
type gitService interface {
	GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error)
	CreateRef(ctx context.Context, owner, repo string, ref *github.Reference) (*github.Reference, *github.Response, error)
	CreateTree(ctx context.Context, owner, repo, baseTree string, entries []*github.TreeEntry) (*github.Tree, *github.Response, error)
	CreateCommit(ctx context.Context, owner, repo string, commit *github.Commit, opts *github.CreateCommitOptions) (*github.Commit, *github.Response, error)
	UpdateRef(ctx context.Context, owner, repo string, ref *github.Reference, force bool) (*github.Reference, *github.Response, error)
}

type repositoriesService interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
}

type pullRequestsService interface {
	Create(ctx context.Context, owner, repo string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error)
}

// Publisher creates branches, commits, and pull requests on a remote repository
type Publisher struct {
	git   gitService
	repos repositoriesService
	pulls pullRequestsService

	// now provides branch-name discriminators; replaceable in tests
	now func() time.Time
}

// NewPublisher creates a Publisher backed by a go-github client
func NewPublisher(githubClient *github.Client) *Publisher {
	return &Publisher{
		git:   githubClient.Git,
		repos: githubClient.Repositories,
		pulls: githubClient.PullRequests,
		now:   time.Now,
	}
}

// Publish lands all edits in one commit on a new uniquely-named branch cut from the
// repository's default branch, then opens a pull request referencing issueNumber (when
// issueNumber > 0). Any step failing aborts the whole publish with an error wrapping
// ErrPublish.
//
// If a step after branch creation fails, the branch ref is left behind; it points at the
// default-branch head and carries no partial tree
func (p *Publisher) Publish(ctx context.Context, owner, repo string, edits []Edit, issueNumber int) (*github.PullRequest, error) {
	if len(edits) == 0 {
		return nil, fmt.Errorf("%w: no edits to publish", ErrPublish)
	}

	repoInfo, _, err := p.repos.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get repository: %v", ErrPublish, err)
	}
	defaultBranch := repoInfo.GetDefaultBranch()
	if defaultBranch == "" {
		return nil, fmt.Errorf("%w: repository has no default branch", ErrPublish)
	}

	headRef, _, err := p.git.GetRef(ctx, owner, repo, "refs/heads/"+defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get head of %s: %v", ErrPublish, defaultBranch, err)
	}
	headSHA := headRef.Object.GetSHA()

	branch := fmt.Sprintf("bot-generated-code-%d", p.now().UnixMilli())
	log.Info().Str("branch", branch).Str("base", defaultBranch).Msg("creating branch")

	_, _, err = p.git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.Ptr(headSHA)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create branch %s: %v", ErrPublish, branch, err)
	}

	entries := make([]*github.TreeEntry, 0, len(edits))
	for _, edit := range edits {
		log.Info().Str("path", edit.Path).Msg("committing file")
		entries = append(entries, &github.TreeEntry{
			Path:    github.Ptr(edit.Path),
			Mode:    github.Ptr("100644"),
			Type:    github.Ptr("blob"),
			Content: github.Ptr(edit.Body),
		})
	}

	tree, _, err := p.git.CreateTree(ctx, owner, repo, headSHA, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create tree: %v", ErrPublish, err)
	}

	commit, _, err := p.git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.Ptr(commitMessage(issueNumber)),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.Ptr(headSHA)}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create commit: %v", ErrPublish, err)
	}

	_, _, err = p.git.UpdateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to advance branch %s: %v", ErrPublish, branch, err)
	}

	title, body := prText(issueNumber)
	pr, _, err := p.pulls.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(branch),
		Base:  github.Ptr(defaultBranch),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pull request: %v", ErrPublish, err)
	}

	log.Info().Str("branch", branch).Int("pr", pr.GetNumber()).Msg("pull request created")
	return pr, nil
}

func commitMessage(issueNumber int) string {
	if issueNumber > 0 {
		return fmt.Sprintf("Generated code for issue #%d", issueNumber)
	}
	return "Generated code"
}

func prText(issueNumber int) (title string, body string) {
	if issueNumber > 0 {
		return fmt.Sprintf("Code generated to resolve #%d", issueNumber),
			fmt.Sprintf("This PR contains generated code for issue #%d.", issueNumber)
	}
	return "Issue resolution", "This PR contains generated code."
}
