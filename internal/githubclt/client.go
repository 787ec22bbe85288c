// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/backportd/internal/bperr"
	"github.com/simplesurance/backportd/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is a github API client.
// All methods return a bperr.RetryableError when an operation can be
// retried. This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// PRInfo describes a pull request at trigger time.
type PRInfo struct {
	Number int
	Title  string
	Body   string
	State  string
	Merged bool
}

// PRInfo returns title, body, state and merged flag of a pull request via
// the GraphQL API.
func (clt *Client) PRInfo(ctx context.Context, owner, repo string, prNumber int) (*PRInfo, error) {
	var q struct {
		Repository struct {
			PullRequest struct {
				Title  githubv4.String
				Body   githubv4.String
				State  githubv4.PullRequestState
				Merged githubv4.Boolean
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(prNumber),
	}

	if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	pr := q.Repository.PullRequest

	return &PRInfo{
		Number: prNumber,
		Title:  string(pr.Title),
		Body:   string(pr.Body),
		State:  string(pr.State),
		Merged: bool(pr.Merged),
	}, nil
}

// Fork describes a fork of a repository.
type Fork struct {
	Owner string
	Name  string
}

// CreateFork requests a fork of the repository for the authenticated user.
// Forking happens asynchronously on the github side, a 202 response is
// treated as success. If a fork already exists, the existing fork is
// returned.
func (clt *Client) CreateFork(ctx context.Context, owner, repo string) (*Fork, error) {
	fork, _, err := clt.restClt.Repositories.CreateFork(ctx, owner, repo, nil)
	if err != nil {
		// a 202 means the fork is being created in the background,
		// the response still describes the fork
		var acceptedErr *github.AcceptedError
		if !errors.As(err, &acceptedErr) {
			return nil, clt.wrapRetryableErrors(err)
		}
	}

	if fork == nil || fork.GetOwner().GetLogin() == "" || fork.GetName() == "" {
		return nil, errors.New("github returned a fork object without owner or name")
	}

	clt.logger.Debug(
		"fork requested",
		logfields.Event("github_fork_requested"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		zap.String("github.fork", fork.GetFullName()),
	)

	return &Fork{
		Owner: fork.GetOwner().GetLogin(),
		Name:  fork.GetName(),
	}, nil
}

// Commit identifies a single commit of a pull request.
type Commit struct {
	SHA string
}

// ListPRCommits returns the commits of a pull request in their original
// order.
func (clt *Client) ListPRCommits(ctx context.Context, owner, repo string, prNumber int) ([]*Commit, error) {
	var result []*Commit

	opts := &github.ListOptions{PerPage: 100}

	for {
		commits, resp, err := clt.restClt.PullRequests.ListCommits(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, commit := range commits {
			sha := commit.GetSHA()
			if sha == "" {
				return nil, errors.New("github returned a commit with an empty sha")
			}

			result = append(result, &Commit{SHA: sha})
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// CommitPatch downloads a single commit as mailbox-format patch document.
func (clt *Client) CommitPatch(ctx context.Context, owner, repo, sha string) (string, error) {
	patch, _, err := clt.restClt.Repositories.GetCommitRaw(
		ctx, owner, repo, sha,
		github.RawOptions{Type: github.Patch},
	)
	if err != nil {
		return "", clt.wrapRetryableErrors(err)
	}

	if patch == "" {
		return "", fmt.Errorf("github returned an empty patch for commit %s", sha)
	}

	return patch, nil
}

// CreatedPR describes a newly created pull request.
type CreatedPR struct {
	Number  int
	HTMLURL string
}

// CreatePullRequest opens a pull request from head onto the base branch.
// head uses the "owner:branch" notation when it refers to a fork.
func (clt *Client) CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (*CreatedPR, error) {
	pr, _, err := clt.restClt.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: &title,
		Head:  &head,
		Base:  &base,
		Body:  &body,
	})
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	return &CreatedPR{
		Number:  pr.GetNumber(),
		HTMLURL: pr.GetHTMLURL(),
	}, nil
}

// CreateIssueComment creates a comment in an issue or pull request.
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

// AddLabel adds a label to a Pull-Request or Issue.
func (clt *Client) AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	if label == "" {
		// by default github removes all labels when none is provided,
		// we do not need this functionality, as safe guard fail if
		// because of a bug an empty label value is passed:
		return errors.New("provided label is empty")
	}
	_, _, err := clt.restClt.Issues.AddLabelsToIssue(ctx, owner, repo, pullRequestOrIssueNumber, []string{label})
	return clt.wrapRetryableErrors(err)
}

// RemoveLabel removes a label from a Pull-Request or issue.
// If the issue or PR does not have the label, the operation succeeds.
func (clt *Client) RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	_, err := clt.restClt.Issues.RemoveLabelForIssue(
		ctx,
		owner,
		repo,
		pullRequestOrIssueNumber,
		label,
	)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) {
			if respErr.Response.StatusCode == http.StatusNotFound {
				clt.logger.Debug("removing label returned a not found response, interpreting it as success",
					logfields.RepositoryOwner(owner),
					logfields.Repository(repo),
					logfields.PullRequest(pullRequestOrIssueNumber),
					logfields.Label(label),
					logfields.Event("github_remove_label_returned_not_found"),
					zap.Error(err),
				)

				return nil
			}
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// RepositoryHasCommits returns true when the repository contains at least
// one commit.
// Errors that a freshly forked repository returns before it materialized
// (404, 409 for an empty git repository) are reported as "no commits yet",
// not as errors.
func (clt *Client) RepositoryHasCommits(ctx context.Context, owner, repo string) (bool, error) {
	commits, _, err := clt.restClt.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) {
			switch respErr.Response.StatusCode {
			case http.StatusNotFound, http.StatusConflict:
				return false, nil
			}
		}

		return false, clt.wrapRetryableErrors(err)
	}

	return len(commits) > 0, nil
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return bperr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.ErrorResponse:
		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return bperr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return bperr.NewRetryableAnytimeError(err)
	}

	return err
}
