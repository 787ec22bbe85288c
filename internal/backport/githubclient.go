package backport

import (
	"context"

	"github.com/simplesurance/backportd/internal/githubclt"
)

// GithubClient is the github API capability set the orchestrator consumes.
type GithubClient interface {
	PRInfo(ctx context.Context, owner, repo string, prNumber int) (*githubclt.PRInfo, error)
	CreateFork(ctx context.Context, owner, repo string) (*githubclt.Fork, error)
	ListPRCommits(ctx context.Context, owner, repo string, prNumber int) ([]*githubclt.Commit, error)
	CommitPatch(ctx context.Context, owner, repo, sha string) (string, error)
	CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (*githubclt.CreatedPR, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
	AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
	RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
	RepositoryHasCommits(ctx context.Context, owner, repo string) (bool, error)
}
