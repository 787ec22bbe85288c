package backport

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
	"github.com/simplesurance/backportd/internal/workspace"
)

// replicate applies the ordered patch list onto a new branch and pushes it.
//
// It checks out targetRemote/targetBranch, pulls it, creates tempBranch from
// it and applies every patch in order with a three-way merge fallback.
// The first patch that fails to apply aborts the whole operation, nothing is
// pushed and the branch is left in its intermediate state.
// After all patches applied, tempBranch is pushed to tempRemote with an
// upstream tracking branch.
func replicate(
	ctx context.Context,
	ws *workspace.Workspace,
	targetRemote, targetBranch, tempBranch, tempRemote string,
	patches []string,
	logger *zap.Logger,
) error {
	if err := ws.CheckoutRemoteBranch(ctx, targetRemote, targetBranch); err != nil {
		return err
	}

	if err := ws.CreateBranch(ctx, tempBranch); err != nil {
		return err
	}

	for i, patch := range patches {
		if err := applyOnePatch(ctx, ws, patch); err != nil {
			return fmt.Errorf("applying patch %d of %d failed: %w", i+1, len(patches), err)
		}

		logger.Debug(
			"patch applied",
			logfields.Event("patch_applied"),
			zap.Int("patch_index", i+1),
			zap.Int("patch_count", len(patches)),
		)
	}

	if err := ws.Push(ctx, tempRemote, tempBranch); err != nil {
		return err
	}

	logger.Debug(
		"backport branch pushed",
		logfields.Event("backport_branch_pushed"),
		logfields.Branch(tempBranch),
	)

	return nil
}

func applyOnePatch(ctx context.Context, ws *workspace.Workspace, patch string) error {
	scratch, err := os.CreateTemp("", "backportd-*.patch")
	if err != nil {
		return fmt.Errorf("creating scratch patch file failed: %w", err)
	}
	defer os.Remove(scratch.Name())

	if _, err := scratch.WriteString(patch); err != nil {
		scratch.Close()
		return fmt.Errorf("writing scratch patch file failed: %w", err)
	}

	if err := scratch.Close(); err != nil {
		return fmt.Errorf("closing scratch patch file failed: %w", err)
	}

	return ws.ApplyPatch(ctx, scratch.Name())
}
