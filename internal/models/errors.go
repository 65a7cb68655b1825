package models

import "errors"

// Domain validation errors surfaced to handlers via errors.Is.
var (
	// Principal
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrInvalidUserID    = errors.New("invalid principal id")

	// Project
	ErrInvalidProjectName = errors.New("project name is required")
	ErrInvalidVersionID   = errors.New("invalid version id")

	// Prompt / iteration guard rails (spec §4.7 step 2, §7)
	ErrEmptyPrompt     = errors.New("prompt message is empty")
	ErrPromptTooLong   = errors.New("prompt exceeds maximum length")
	ErrUnsupportedPrompt = errors.New("prompt does not match any supported edit grammar pattern")
	ErrPatternNotFound   = errors.New("no matching component or text found for prompt pattern")

	// Diff engine (C3)
	ErrInvalidPath        = errors.New("file path is outside the editable scope")
	ErrTooManyFiles        = errors.New("too many files in a single change")
	ErrFileTooLarge        = errors.New("file exceeds the maximum line count")
	ErrLocalVerifyFailed   = errors.New("local verification failed after applying changes")

	// Credit ledger (C1)
	ErrInvalidCreditAmount = errors.New("credit amount must be positive")
	ErrInvalidReason       = errors.New("reason is required")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Rate limiter (C2)
	ErrRateLimited = errors.New("rate limit exceeded")

	// Build runner (C4)
	ErrRunnerUnavailable = errors.New("build runner is unavailable")
	ErrRunnerTimeout     = errors.New("build runner request timed out")
	ErrBuildFailed       = errors.New("build failed after exhausting repair attempts")
)
