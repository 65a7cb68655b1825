package service

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// lintTimeout bounds how long a local verification lint run may take before
// it is treated the same as "linter not available".
const lintTimeout = 30 * time.Second

// NpmLinter runs `npm run lint` in a project's working directory as the
// local verifier ApplyAndVerify calls after applying a prompt-driven edit.
// A missing npm binary or missing lint script is not a failure - the
// original service treats an unavailable linter as nothing to verify
// against, not a reason to reject the edit.
type NpmLinter struct{}

func NewNpmLinter() NpmLinter { return NpmLinter{} }

func (NpmLinter) Lint(ctx context.Context, projectDir string) error {
	ctx, cancel := context.WithTimeout(ctx, lintTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "npm", "run", "lint")
	cmd.Dir = projectDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil
		}
		if strings.Contains(strings.ToLower(string(output)), "missing script") {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if len(output) > 500 {
			output = output[:500]
		}
		return errors.New(string(output))
	}
	return nil
}
