// Package gh wraps the GitHub REST operations the bot consumes: file content, issues,
// comments. It is a thin boundary layer; nothing here contains pipeline logic.
package gh

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v72/github"

	"github.com/octaviuslabs/walter/internal/target"
)

// ErrTransient marks a remote call failure that is likely to succeed on retry: network
// errors and server-side (5xx) responses. The dispatcher uses errors.Is against this to
// decide whether to retry an event
var ErrTransient = errors.New("transient network error")

// Client wraps a go-github client with the narrow operations the pipeline needs
type Client struct {
	gh *github.Client
}

// NewClient creates a Client backed by the given go-github client
func NewClient(githubClient *github.Client) *Client {
	return &Client{gh: githubClient}
}

// Issue is the subset of issue fields the pipeline reads
type Issue struct {
	Number int
	Body   string
	Author string
}

// Comment is the subset of issue comment fields the pipeline reads
type Comment struct {
	ID     int64
	Body   string
	Author string
}

// GetFile fetches the file a Reference points at and slices out the focus range when the
// reference carries line numbers
func (c *Client) GetFile(ctx context.Context, ref target.Reference) (target.FileContent, error) {
	content, _, _, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path(), &github.RepositoryContentGetOptions{
		Ref: ref.Branch,
	})
	if err != nil {
		return target.FileContent{}, classify(fmt.Errorf("failed to fetch %s: %w", ref.Path(), err))
	}
	if content == nil {
		return target.FileContent{}, fmt.Errorf("%s is not a file", ref.Path())
	}

	body, err := content.GetContent()
	if err != nil {
		return target.FileContent{}, fmt.Errorf("failed to decode content of %s: %w", ref.Path(), err)
	}

	fc := target.FileContent{
		Ref:  ref,
		Body: body,
	}

	if ref.StartLine != nil {
		lines := strings.Split(body, "\n")
		start := *ref.StartLine
		end := len(lines)
		if ref.EndLine != nil && *ref.EndLine < end {
			end = *ref.EndLine
		}
		if start >= 1 && start <= end {
			fc.Focus = strings.Join(lines[start-1:end], "\n")
		}
	}

	return fc, nil
}

// GetIssue fetches an issue's body and author
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (Issue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return Issue{}, classify(fmt.Errorf("failed to get issue #%d: %w", number, err))
	}

	return Issue{
		Number: issue.GetNumber(),
		Body:   issue.GetBody(),
		Author: issue.GetUser().GetLogin(),
	}, nil
}

// ListIssueComments retrieves all comments on an issue in creation order
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{
		Sort:      github.Ptr("created"),
		Direction: github.Ptr("asc"),
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	var all []Comment
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, classify(fmt.Errorf("failed to list comments on issue #%d: %w", number, err))
		}
		for _, comment := range comments {
			if comment == nil {
				continue
			}
			all = append(all, Comment{
				ID:     comment.GetID(),
				Body:   comment.GetBody(),
				Author: comment.GetUser().GetLogin(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// PostIssueComment posts a comment on an issue
func (c *Client) PostIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to post comment on issue #%d: %w", number, err))
	}
	return nil
}

// classify tags retryable remote failures with ErrTransient. GitHub 4xx responses pass
// through untouched; they will not succeed on retry
func classify(err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		if ghErr.Response != nil && ghErr.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	return err
}
