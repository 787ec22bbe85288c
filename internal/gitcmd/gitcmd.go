// Package gitcmd runs git as a subprocess.
package gitcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
)

const loggerName = "gitcmd"

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type Options struct {
	// Dir is the working directory of the git process.
	Dir string
}

// Run executes git with the given arguments.
// The first argument must be one of the allow-listed subcommands.
// On a non-zero exit code an error describing the command and its stderr
// output is returned together with the Result.
func Run(ctx context.Context, args []string, opts Options) (Result, error) {
	if err := validateArgs(args); err != nil {
		return Result{
			Stderr:   err.Error(),
			ExitCode: -1,
		}, err
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(err),
	}

	zap.L().Named(loggerName).Debug(
		"git command executed",
		logfields.Event("git_command_executed"),
		zap.String("git.args", strings.Join(args, " ")),
		zap.String("git.dir", opts.Dir),
		zap.Int("git.exit_code", result.ExitCode),
	)

	if err != nil {
		return result, fmt.Errorf("git %s failed: %w, stderr: %s",
			strings.Join(args, " "), err, strings.TrimSpace(result.Stderr))
	}

	return result, nil
}

func validateArgs(args []string) error {
	if len(args) == 0 {
		return errors.New("git command is required")
	}

	if _, ok := allowedSubcommands[args[0]]; !ok {
		return fmt.Errorf("git subcommand %q is not allowed", args[0])
	}

	return nil
}

var allowedSubcommands = map[string]struct{}{
	"am":        {},
	"apply":     {},
	"branch":    {},
	"checkout":  {},
	"clean":     {},
	"clone":     {},
	"config":    {},
	"fetch":     {},
	"init":      {},
	"pull":      {},
	"push":      {},
	"remote":    {},
	"reset":     {},
	"rev-parse": {},
	"status":    {},
	"add":       {},
	"commit":    {},
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1
	}

	return exitErr.ExitCode()
}
