// Package backport implements the backport workflow: a single-lane job
// queue, the fork-readiness poller, patch replication and the orchestration
// between them.
package backport

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
	"github.com/simplesurance/backportd/internal/workspace"
)

const loggerName = "backport"

// maxPatchCount is the highest commit count that is backported
// automatically. The ceiling is tied to the pagination limit of the github
// PR commit listing API, PRs with more commits must be backported manually.
const maxPatchCount = 240

const (
	remoteNameTargetRepo = "target_repo"
	remoteNameFork       = "fork"
)

type workspaceManager interface {
	Prepare(ctx context.Context, slug, cloneURL string) (*workspace.Workspace, error)
}

// Orchestrator composes queue, workspace manager, fork poller and patch
// replication into the end-to-end backport workflow.
type Orchestrator struct {
	ghClient   GithubClient
	workspaces workspaceManager
	queue      *Queue
	logger     *zap.Logger

	targetLabelPrefix string
	mergedLabelPrefix string
	backportLabel     string
	branchPrefix      string

	forkPollInterval    time.Duration
	forkPollMaxAttempts uint

	cloneURL func(owner, repo string) string
	pushURL  func(owner, repo string) string
}

type OrchestratorParams struct {
	GithubClient GithubClient
	Workspaces   *workspace.Manager
	Queue        *Queue

	// APIToken is embedded in the push URL of the fork remote.
	APIToken string

	TargetLabelPrefix string
	MergedLabelPrefix string
	BackportLabel     string
	// BranchPrefix is the first path element of generated temporary
	// branch names.
	BranchPrefix string

	ForkPollInterval    time.Duration
	ForkPollMaxAttempts uint
}

func NewOrchestrator(params OrchestratorParams) *Orchestrator {
	token := params.APIToken

	return &Orchestrator{
		ghClient:            params.GithubClient,
		workspaces:          params.Workspaces,
		queue:               params.Queue,
		logger:              zap.L().Named(loggerName),
		targetLabelPrefix:   params.TargetLabelPrefix,
		mergedLabelPrefix:   params.MergedLabelPrefix,
		backportLabel:       params.BackportLabel,
		branchPrefix:        params.BranchPrefix,
		forkPollInterval:    params.ForkPollInterval,
		forkPollMaxAttempts: params.ForkPollMaxAttempts,
		cloneURL: func(owner, repo string) string {
			return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
		},
		pushURL: func(owner, repo string) string {
			return fmt.Sprintf("https://%s@github.com/%s/%s.git", token, owner, repo)
		},
	}
}

// Process validates a trigger and enqueues a backport job for it.
//
// Triggers that do not resolve to a backport (label without the target
// prefix, empty branch name, unmerged PR) are logged and dropped without
// user-visible artifacts.
func (o *Orchestrator) Process(ctx context.Context, trigger *Trigger) error {
	logger := o.logger.With(
		logfields.RepositoryOwner(trigger.RepoOwner),
		logfields.Repository(trigger.Repository),
		logfields.PullRequest(trigger.PRNumber),
		zap.Stringer("trigger_kind", trigger.Kind),
	)

	var targetBranch, removeLabel, addLabel string

	switch trigger.Kind {
	case TriggerLabel:
		targetBranch = ResolveTargetBranch(trigger.Label, o.targetLabelPrefix)
		if targetBranch == "" {
			logger.Debug(
				"label does not resolve to a target branch, ignoring",
				logfields.Event("trigger_label_ignored"),
				logfields.Label(trigger.Label),
			)

			return nil
		}

		removeLabel = trigger.Label
		addLabel = MergedLabel(targetBranch, o.mergedLabelPrefix)

	case TriggerCommand:
		targetBranch = trigger.TargetBranch
		if targetBranch == "" {
			logger.Debug(
				"backport command without target branch, ignoring",
				logfields.Event("trigger_command_ignored"),
			)

			return nil
		}

	case TriggerKindUndefined:
		return fmt.Errorf("trigger kind is undefined")

	default:
		return fmt.Errorf("unsupported trigger kind: %d", trigger.Kind)
	}

	logger = logger.With(logfields.TargetBranch(targetBranch))

	prInfo, err := o.ghClient.PRInfo(ctx, trigger.RepoOwner, trigger.Repository, trigger.PRNumber)
	if err != nil {
		return fmt.Errorf("retrieving pull request information failed: %w", err)
	}

	if !prInfo.Merged {
		logger.Debug(
			"pull request is not merged, ignoring trigger",
			logfields.Event("trigger_unmerged_pr_ignored"),
		)

		return nil
	}

	target := &Target{
		RepoOwner:    trigger.RepoOwner,
		Repository:   trigger.Repository,
		PRNumber:     trigger.PRNumber,
		PRTitle:      prInfo.Title,
		PRBody:       prInfo.Body,
		TargetBranch: targetBranch,
		RemoveLabel:  removeLabel,
		AddLabel:     addLabel,
	}

	job := &Job{
		Name:      fmt.Sprintf("backport %s#%d to %s", target.Slug(), target.PRNumber, target.TargetBranch),
		LogFields: target.LogFields(),
		Run: func(ctx context.Context) error {
			return o.run(ctx, target)
		},
		OnFailure: func(ctx context.Context, _ error) error {
			return o.ghClient.CreateIssueComment(
				ctx, target.RepoOwner, target.Repository, target.PRNumber,
				fmt.Sprintf("The automated backport to `%s` failed. Please do a manual backport.", target.TargetBranch),
			)
		},
	}

	if err := o.queue.Enqueue(job); err != nil {
		return fmt.Errorf("enqueueing backport job failed: %w", err)
	}

	logger.Info("backport job enqueued", logfields.Event("backport_job_enqueued"))

	return nil
}

// run executes one backport job.
// Every step is a potential failure point, errors propagate to the queue's
// failure handler, there is no per-step retry.
func (o *Orchestrator) run(ctx context.Context, target *Target) error {
	logger := o.logger.With(target.LogFields()...)

	commits, err := o.ghClient.ListPRCommits(ctx, target.RepoOwner, target.Repository, target.PRNumber)
	if err != nil {
		return fmt.Errorf("listing pull request commits failed: %w", err)
	}

	if len(commits) == 0 {
		logger.Info(
			"pull request has no commits, nothing to backport",
			logfields.Event("backport_empty_pr_skipped"),
		)

		return nil
	}

	if len(commits) >= maxPatchCount {
		logger.Info(
			"pull request has too many commits for an automated backport",
			logfields.Event("backport_too_many_commits"),
			zap.Int("commit_count", len(commits)),
		)

		return o.ghClient.CreateIssueComment(
			ctx, target.RepoOwner, target.Repository, target.PRNumber,
			fmt.Sprintf(
				"This pull request has %d commits, automated backports handle fewer than %d. Please backport to `%s` manually.",
				len(commits), maxPatchCount, target.TargetBranch,
			),
		)
	}

	ws, err := o.workspaces.Prepare(ctx, target.Slug(), o.cloneURL(target.RepoOwner, target.Repository))
	if err != nil {
		return fmt.Errorf("preparing workspace failed: %w", err)
	}

	fork, err := o.ghClient.CreateFork(ctx, target.RepoOwner, target.Repository)
	if err != nil {
		return fmt.Errorf("requesting fork failed: %w", err)
	}

	err = waitReady(ctx, o.forkPollInterval, o.forkPollMaxAttempts,
		func(ctx context.Context) (bool, error) {
			return o.ghClient.RepositoryHasCommits(ctx, fork.Owner, fork.Name)
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("waiting for fork %s/%s failed: %w", fork.Owner, fork.Name, err)
	}

	err = ws.BindRemotes(ctx,
		workspace.Remote{Name: remoteNameTargetRepo, URL: o.cloneURL(target.RepoOwner, target.Repository)},
		workspace.Remote{Name: remoteNameFork, URL: o.pushURL(fork.Owner, fork.Name)},
	)
	if err != nil {
		return fmt.Errorf("binding remotes failed: %w", err)
	}

	patches := make([]string, 0, len(commits))
	for _, commit := range commits {
		patch, err := o.ghClient.CommitPatch(ctx, target.RepoOwner, target.Repository, commit.SHA)
		if err != nil {
			return fmt.Errorf("downloading patch for commit %s failed: %w", commit.SHA, err)
		}

		patches = append(patches, patch)
	}

	tempBranch := tempBranchName(o.branchPrefix, target.TargetBranch, target.PRTitle, time.Now())

	err = replicate(ctx, ws, remoteNameTargetRepo, target.TargetBranch, tempBranch, remoteNameFork, patches, logger)
	if err != nil {
		return fmt.Errorf("replicating patches failed: %w", err)
	}

	newPR, err := o.ghClient.CreatePullRequest(
		ctx, target.RepoOwner, target.Repository,
		fmt.Sprintf("[%s] %s", target.TargetBranch, target.PRTitle),
		fork.Owner+":"+tempBranch,
		target.TargetBranch,
		backportPRBody(target.RepoOwner, target.Repository, target.PRNumber, target.PRBody),
	)
	if err != nil {
		return fmt.Errorf("creating backport pull request failed: %w", err)
	}

	logger = logger.With(zap.Int("github.backport_pull_request", newPR.Number))

	err = o.ghClient.CreateIssueComment(
		ctx, target.RepoOwner, target.Repository, target.PRNumber,
		fmt.Sprintf("Backport to `%s` created: %s", target.TargetBranch, newPR.HTMLURL),
	)
	if err != nil {
		return fmt.Errorf("commenting on origin pull request failed: %w", err)
	}

	if target.RemoveLabel != "" {
		if err := o.ghClient.RemoveLabel(ctx, target.RepoOwner, target.Repository, target.PRNumber, target.RemoveLabel); err != nil {
			return fmt.Errorf("removing label %q failed: %w", target.RemoveLabel, err)
		}
	}

	if target.AddLabel != "" {
		if err := o.ghClient.AddLabel(ctx, target.RepoOwner, target.Repository, target.PRNumber, target.AddLabel); err != nil {
			return fmt.Errorf("adding label %q failed: %w", target.AddLabel, err)
		}
	}

	if err := o.ghClient.AddLabel(ctx, target.RepoOwner, target.Repository, newPR.Number, o.backportLabel); err != nil {
		return fmt.Errorf("labeling backport pull request failed: %w", err)
	}

	logger.Info("backport finished", logfields.Event("backport_finished"))

	return nil
}
