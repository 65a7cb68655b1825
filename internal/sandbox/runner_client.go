// Package sandbox talks to the external build runner: the isolated
// container service that actually executes a project's install/lint/build
// pipeline. The orchestrator never runs untrusted project code itself.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"iterate-orchestrator/internal/models"

	"golang.org/x/time/rate"
)

// BuildRequest is the payload sent to the runner's /build endpoint.
type BuildRequest struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path"`
	Timeout     int    `json:"timeout"`
	MemoryLimit string `json:"memory_limit"`
	CPULimit    string `json:"cpu_limit"`
}

// RepairRequest is the payload sent to the runner's /repair endpoint: a
// build request plus the error logs the repair attempt is responding to.
type RepairRequest struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path"`
	ErrorLogs   string `json:"error_logs"`
	Timeout     int    `json:"timeout"`
	MemoryLimit string `json:"memory_limit"`
	CPULimit    string `json:"cpu_limit"`
}

// BuildResult is the runner's response, with build and lint output already
// split out of the combined log stream.
type BuildResult struct {
	Success     bool   `json:"success"`
	ExitCode    int    `json:"exit_code"`
	BuildLogs   string `json:"-"`
	LintOutput  string `json:"lint_output"`
	BuildOutput string `json:"build_output"`
	Error       string `json:"error,omitempty"`
}

type runnerResponse struct {
	Success     bool   `json:"success"`
	ExitCode    int    `json:"exit_code"`
	Logs        string `json:"logs"`
	LintOutput  string `json:"lint_output"`
	BuildOutput string `json:"build_output"`
	Error       string `json:"error"`
}

const (
	defaultMemoryLimit = "1g"
	defaultCPULimit    = "1.0"
	httpOverheadBuffer = 60 * time.Second

	// maxConcurrentRunnerRequests sets the token bucket for outbound
	// build/repair RPCs: at most this many calls start per second, with a
	// burst of the same size. It limits the rate at which calls start; it
	// does not bound how many calls are in flight at once.
	maxConcurrentRunnerRequests = 5
)

// RunnerClient is a bearer-authenticated HTTP client for the build runner.
type RunnerClient struct {
	httpClient  *http.Client
	baseURL     string
	secret      string
	timeout     time.Duration
	rateLimiter *rate.Limiter
}

func NewRunnerClient(baseURL, secret string, buildTimeout time.Duration) *RunnerClient {
	return &RunnerClient{
		httpClient: &http.Client{
			Timeout: buildTimeout + httpOverheadBuffer,
		},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		secret:      secret,
		timeout:     buildTimeout,
		rateLimiter: rate.NewLimiter(rate.Limit(maxConcurrentRunnerRequests), maxConcurrentRunnerRequests),
	}
}

// Build runs a fresh build for a project through the runner.
func (c *RunnerClient) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	if req.Timeout == 0 {
		req.Timeout = int(c.timeout.Seconds())
	}
	if req.MemoryLimit == "" {
		req.MemoryLimit = defaultMemoryLimit
	}
	if req.CPULimit == "" {
		req.CPULimit = defaultCPULimit
	}
	return c.call(ctx, "/build", req)
}

// Repair runs a repair attempt, carrying forward the prior failure's logs
// so the runner's own toolchain (or an in-sandbox agent) has context.
func (c *RunnerClient) Repair(ctx context.Context, req RepairRequest) (BuildResult, error) {
	if req.Timeout == 0 {
		req.Timeout = int(c.timeout.Seconds())
	}
	if req.MemoryLimit == "" {
		req.MemoryLimit = defaultMemoryLimit
	}
	if req.CPULimit == "" {
		req.CPULimit = defaultCPULimit
	}
	return c.call(ctx, "/repair", req)
}

func (c *RunnerClient) call(ctx context.Context, path string, payload interface{}) (BuildResult, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return BuildResult{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to marshal runner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to build runner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BuildResult{}, classifyRunnerError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to read runner response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return BuildResult{}, fmt.Errorf("%w: runner returned status %d: %s", models.ErrRunnerUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed runnerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return BuildResult{}, fmt.Errorf("failed to unmarshal runner response: %w", err)
	}

	lint, build := splitBuildLogs(parsed.Logs)
	if parsed.LintOutput != "" {
		lint = parsed.LintOutput
	}
	if parsed.BuildOutput != "" {
		build = parsed.BuildOutput
	}

	return BuildResult{
		Success:     parsed.Success,
		ExitCode:    parsed.ExitCode,
		BuildLogs:   parsed.Logs,
		LintOutput:  lint,
		BuildOutput: build,
		Error:       parsed.Error,
	}, nil
}

// classifyRunnerError maps a transport-level failure into one of the two
// sentinel errors the orchestrator branches on, falling back to wrapping
// the raw error for anything unrecognized.
func classifyRunnerError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrRunnerTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrRunnerTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", models.ErrRunnerUnavailable, err)
	}

	return fmt.Errorf("%w: unexpected error calling runner: %v", models.ErrRunnerUnavailable, err)
}

// splitBuildLogs separates a combined log stream into its lint and build
// segments, using the conventional "=== lint ===" / "=== build ===" section
// markers the runner emits. If neither marker is present, the whole stream
// is treated as build output.
func splitBuildLogs(combined string) (lint, build string) {
	const lintMarker = "=== lint ==="
	const buildMarker = "=== build ==="

	lintIdx := strings.Index(combined, lintMarker)
	buildIdx := strings.Index(combined, buildMarker)

	switch {
	case lintIdx == -1 && buildIdx == -1:
		return "", combined
	case lintIdx != -1 && buildIdx != -1 && lintIdx < buildIdx:
		return strings.TrimSpace(combined[lintIdx+len(lintMarker) : buildIdx]), strings.TrimSpace(combined[buildIdx+len(buildMarker):])
	case lintIdx != -1 && buildIdx != -1:
		return strings.TrimSpace(combined[lintIdx+len(lintMarker):]), strings.TrimSpace(combined[buildIdx+len(buildMarker) : lintIdx])
	case lintIdx != -1:
		return strings.TrimSpace(combined[lintIdx+len(lintMarker):]), ""
	default:
		return "", strings.TrimSpace(combined[buildIdx+len(buildMarker):])
	}
}
