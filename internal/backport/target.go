package backport

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
)

// TriggerKind discriminates how a backport was requested.
type TriggerKind uint8

const (
	TriggerKindUndefined TriggerKind = iota
	// TriggerLabel is a target-label applied to a pull request.
	TriggerLabel
	// TriggerCommand is an explicit backport command comment.
	TriggerCommand
)

var triggerKindString = [...]string{
	TriggerKindUndefined: "undefined",
	TriggerLabel:         "label",
	TriggerCommand:       "command",
}

func (k TriggerKind) String() string {
	if int(k) > len(triggerKindString)-1 {
		return fmt.Sprintf("unsupported TriggerKind value: %d", k)
	}

	return triggerKindString[k]
}

// Trigger is one inbound backport request.
type Trigger struct {
	Kind       TriggerKind
	RepoOwner  string
	Repository string
	PRNumber   int
	// Label is the applied label, set when Kind is TriggerLabel.
	Label string
	// TargetBranch is the requested branch, set when Kind is
	// TriggerCommand.
	TargetBranch string
}

// Target fully parameterizes one backport job.
// It is derived once at trigger time and immutable afterwards.
type Target struct {
	RepoOwner  string
	Repository string
	PRNumber   int
	PRTitle    string
	PRBody     string

	TargetBranch string
	// RemoveLabel is removed from the origin PR after a successful
	// backport, empty when no label rewrite is wanted.
	RemoveLabel string
	// AddLabel is added to the origin PR after a successful backport,
	// empty when no label rewrite is wanted.
	AddLabel string
}

func (t *Target) Slug() string {
	return t.RepoOwner + "/" + t.Repository
}

func (t *Target) LogFields() []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(t.RepoOwner),
		logfields.Repository(t.Repository),
		logfields.PullRequest(t.PRNumber),
		logfields.TargetBranch(t.TargetBranch),
	}
}

// ResolveTargetBranch strips the configured prefix from a target label.
// It returns an empty string when the label does not carry the prefix or
// resolves to an empty branch name.
func ResolveTargetBranch(label, prefix string) string {
	if !strings.HasPrefix(label, prefix) {
		return ""
	}

	return strings.TrimPrefix(label, prefix)
}

// MergedLabel returns the label that marks the origin PR as backported to
// branch.
func MergedLabel(branch, prefix string) string {
	return prefix + branch
}
