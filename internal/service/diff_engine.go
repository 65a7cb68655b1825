package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"iterate-orchestrator/internal/models"

	"github.com/rs/zerolog/log"
)

// allowedEditExtensions mirrors the original service's conservative set:
// only source and content files an LLM-driven edit can touch, never build
// output or lockfiles.
var allowedEditExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".css": true, ".json": true, ".md": true, ".txt": true,
}

// forbiddenPathSegments never appear in an editable path, even if the
// extension would otherwise be allowed.
var forbiddenPathSegments = []string{"node_modules", ".next", ".git", "dist", "build"}

// MaxFilesPerChange bounds how many files one prompt-driven edit may touch.
const MaxFilesPerChange = 10

// MaxLinesPerFile bounds the size of any single file after an edit.
const MaxLinesPerFile = 1000

// Linter runs the project's lint/build check and reports whether it passed.
// ApplyAndVerify reverts every applied change when it returns a non-nil error.
type Linter interface {
	Lint(ctx context.Context, projectDir string) error
}

// DiffEngine generates and applies minimal, validated file-level edits
// against a project's working directory. It never rewrites a file wholesale
// unless the caller's new content IS the whole file - the safety gate is in
// which files and how many of them may change, not in the size of the diff.
type DiffEngine struct{}

func NewDiffEngine() *DiffEngine {
	return &DiffEngine{}
}

// ValidateEditable reports whether relPath may be edited: it must resolve
// inside the project directory, carry an allowed extension, and avoid every
// forbidden directory segment.
func (e *DiffEngine) ValidateEditable(projectDir, relPath string) error {
	cleaned := filepath.Clean(relPath)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return models.ErrInvalidPath
	}

	absProject, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}
	absTarget, err := filepath.Abs(filepath.Join(projectDir, cleaned))
	if err != nil {
		return fmt.Errorf("failed to resolve target path: %w", err)
	}
	rel, err := filepath.Rel(absProject, absTarget)
	if err != nil || strings.HasPrefix(rel, "..") {
		return models.ErrInvalidPath
	}

	if !allowedEditExtensions[filepath.Ext(cleaned)] {
		return models.ErrInvalidPath
	}

	for _, segment := range strings.Split(filepath.ToSlash(cleaned), "/") {
		for _, forbidden := range forbiddenPathSegments {
			if segment == forbidden {
				return models.ErrInvalidPath
			}
		}
	}

	return nil
}

// GenerateUnifiedDiff produces a standard unified diff between oldContent
// and newContent, framed the same way `difflib.unified_diff` frames it:
// `---`/`+++` file headers and `@@` hunk markers. Go's ecosystem carries no
// diff library any example repo imports, so this is a deliberately small,
// line-based implementation rather than a full Myers diff - good enough to
// render a readable change, not intended to minimize edit distance.
func (e *DiffEngine) GenerateUnifiedDiff(oldContent, newContent, path string) string {
	oldLines := splitKeepingLineage(oldContent)
	newLines := splitKeepingLineage(newContent)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines))

	common := commonPrefixLen(oldLines, newLines)
	for i := 0; i < common; i++ {
		fmt.Fprintf(&b, " %s\n", oldLines[i])
	}
	for i := common; i < len(oldLines); i++ {
		fmt.Fprintf(&b, "-%s\n", oldLines[i])
	}
	for i := common; i < len(newLines); i++ {
		fmt.Fprintf(&b, "+%s\n", newLines[i])
	}

	return b.String()
}

func splitKeepingLineage(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// ComputeChanges diffs two named file sets, classifying every path as
// modified, added, or deleted - the three sets are disjoint by construction.
func (e *DiffEngine) ComputeChanges(old, new map[string]string) models.CodeDiff {
	changes := models.CodeDiff{
		Modified: make(map[string]string),
	}

	seen := make(map[string]bool, len(old)+len(new))
	for path := range old {
		seen[path] = true
	}
	for path := range new {
		seen[path] = true
	}

	for path := range seen {
		oldContent, hadOld := old[path]
		newContent, hasNew := new[path]

		switch {
		case hadOld && hasNew:
			if oldContent != newContent {
				changes.Modified[path] = e.GenerateUnifiedDiff(oldContent, newContent, path)
			}
		case hasNew:
			changes.Added = append(changes.Added, path)
		case hadOld:
			changes.Deleted = append(changes.Deleted, path)
		}
	}

	return changes
}

var (
	changeComponentFieldPattern = regexp.MustCompile(`change\s+(\w+)\s+(\w+)\s+to\s+"?([^"]+)"?`)
	updateTextPattern           = regexp.MustCompile(`update\s+"?([^"]+)"?\s+to\s+"?([^"]+)"?`)

	titlePatterns = []struct {
		pattern     *regexp.Regexp
		replacement string
	}{
		{regexp.MustCompile(`(<h1[^>]*>)([^<]+)(</h1>)`), "${1}%s${3}"},
		{regexp.MustCompile(`("title":\s*")([^"]+)(")`), "${1}%s${3}"},
		{regexp.MustCompile(`(title\s*=\s*")([^"]+)(")`), "${1}%s${3}"},
	}
)

// GenerateFromPrompt maps a natural-language prompt to a concrete set of
// file edits, following exactly two recognized grammars: a structured
// "change <component> <field> to <value>" command, and a free-text "update
// <old> to <new>" substitution. Anything else is rejected rather than
// guessed at - an unmatched prompt must fail loudly, not silently no-op.
func (e *DiffEngine) GenerateFromPrompt(prompt, projectDir string) (map[string]string, error) {
	lower := strings.ToLower(prompt)
	changes := make(map[string]string)

	switch {
	case changeComponentFieldPattern.MatchString(lower):
		match := changeComponentFieldPattern.FindStringSubmatch(lower)
		component, field, value := match[1], match[2], match[3]

		componentFile, err := e.findComponentFile(projectDir, component)
		if err != nil {
			return nil, err
		}
		if componentFile == "" {
			return nil, fmt.Errorf("%w: component %q not found", models.ErrPatternNotFound, component)
		}

		relPath, err := filepath.Rel(projectDir, componentFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve component path: %w", err)
		}
		if err := e.ValidateEditable(projectDir, relPath); err != nil {
			return nil, fmt.Errorf("cannot edit %s: %w", relPath, err)
		}

		content, err := os.ReadFile(componentFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read component file: %w", err)
		}

		if field != "title" {
			return nil, fmt.Errorf("%w: field %q not supported", models.ErrUnsupportedPrompt, field)
		}

		newContent, applied := applyTitlePatterns(string(content), value)
		if !applied {
			return nil, fmt.Errorf("%w: no title found in %s component to change", models.ErrPatternNotFound, component)
		}
		changes[relPath] = newContent

	case updateTextPattern.MatchString(lower):
		match := updateTextPattern.FindStringSubmatch(lower)
		oldText, newText := match[1], match[2]

		found, err := e.replaceInTSXFiles(projectDir, oldText, newText)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: text %q not found in any files", models.ErrPatternNotFound, oldText)
		}
		for path, content := range found {
			changes[path] = content
		}

	default:
		return nil, models.ErrUnsupportedPrompt
	}

	if len(changes) > MaxFilesPerChange {
		return nil, fmt.Errorf("%w: %d > %d", models.ErrTooManyFiles, len(changes), MaxFilesPerChange)
	}

	return changes, nil
}

func applyTitlePatterns(content, value string) (string, bool) {
	for _, tp := range titlePatterns {
		if tp.pattern.MatchString(content) {
			replacement := fmt.Sprintf(tp.replacement, value)
			return tp.pattern.ReplaceAllString(content, replacement), true
		}
	}
	return content, false
}

// findComponentFile tries four conventional locations before falling back
// to a recursive search, matching the original service's search order.
func (e *DiffEngine) findComponentFile(projectDir, component string) (string, error) {
	capitalized := strings.ToUpper(component[:1]) + component[1:]
	candidates := []string{
		filepath.Join(projectDir, "components", "sections", component+".tsx"),
		filepath.Join(projectDir, "components", "sections", capitalized+".tsx"),
		filepath.Join(projectDir, "app", component, "page.tsx"),
		filepath.Join(projectDir, "components", component+".tsx"),
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	var found string
	err := filepath.Walk(projectDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".tsx") || !strings.Contains(path, component) {
			return nil
		}
		rel, relErr := filepath.Rel(projectDir, path)
		if relErr != nil {
			return nil
		}
		if e.ValidateEditable(projectDir, rel) == nil {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search for component file: %w", err)
	}
	return found, nil
}

// replaceInTSXFiles walks every .tsx file under projectDir and returns the
// first one whose content contains oldText, with the substitution applied.
// It stops at the first match - the original service's behavior, not an
// oversight: "update" prompts target one piece of copy, not every instance.
func (e *DiffEngine) replaceInTSXFiles(projectDir, oldText, newText string) (map[string]string, error) {
	changes := make(map[string]string)

	err := filepath.Walk(projectDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || len(changes) > 0 {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".tsx") {
			return nil
		}

		rel, relErr := filepath.Rel(projectDir, path)
		if relErr != nil || e.ValidateEditable(projectDir, rel) != nil {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if strings.Contains(string(content), oldText) {
			changes[rel] = strings.ReplaceAll(string(content), oldText, newText)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search project files: %w", err)
	}
	return changes, nil
}

// ApplyAndVerify writes every change to disk, backing up prior content
// first, then runs linter against the project directory. Any failure -
// an invalid path or a failing lint - reverts every file this call touched
// before returning, so a rejected edit never leaves the working tree
// half-changed.
func (e *DiffEngine) ApplyAndVerify(ctx context.Context, projectDir string, changes map[string]string, linter Linter) (map[string]string, error) {
	applied := make(map[string]string, len(changes))
	revert := func() { e.Revert(projectDir, applied) }

	for relPath, newContent := range changes {
		if err := e.ValidateEditable(projectDir, relPath); err != nil {
			revert()
			return nil, fmt.Errorf("cannot edit %s: %w", relPath, err)
		}

		lines := strings.Count(newContent, "\n") + 1
		if lines > MaxLinesPerFile {
			revert()
			return nil, fmt.Errorf("%s: %w", relPath, models.ErrFileTooLarge)
		}

		fullPath := filepath.Join(projectDir, relPath)
		if original, err := os.ReadFile(fullPath); err == nil {
			applied[relPath] = string(original)
		} else {
			applied[relPath] = ""
		}

		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			revert()
			return nil, fmt.Errorf("failed to create directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(fullPath, []byte(newContent), 0o644); err != nil {
			revert()
			return nil, fmt.Errorf("failed to write %s: %w", relPath, err)
		}
	}

	if linter != nil {
		if err := linter.Lint(ctx, projectDir); err != nil {
			revert()
			return nil, fmt.Errorf("%w: %v", models.ErrLocalVerifyFailed, err)
		}
	}

	return applied, nil
}

// Revert restores every path in applied to its recorded original content.
// Callers that accepted an ApplyAndVerify result but later abort for an
// unrelated reason (insufficient credits, a later step failing) use this to
// undo the write without re-running validation.
func (e *DiffEngine) Revert(projectDir string, applied map[string]string) {
	for relPath, original := range applied {
		fullPath := filepath.Join(projectDir, relPath)
		if writeErr := os.WriteFile(fullPath, []byte(original), 0o644); writeErr != nil {
			log.Error().Err(writeErr).Str("path", relPath).Msg("failed to revert file during diff rollback")
		}
	}
}
