package service

import (
	"os"
	"path/filepath"
	"testing"

	"iterate-orchestrator/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyChangeSize(t *testing.T) {
	cases := []struct {
		name       string
		message    string
		numFiles   int
		totalLines int
		wantSize   models.ChangeSize
	}{
		{"small by keyword", "please change the label text", 5, 400, models.ChangeSizeSmall},
		{"small by limits", "tweak it", 1, 10, models.ChangeSizeSmall},
		{"medium by keyword", "add a newsletter signup form", 5, 400, models.ChangeSizeMedium},
		{"medium by limits", "do the thing", 3, 180, models.ChangeSizeMedium},
		{"large by keyword", "refactor the whole layout", 5, 400, models.ChangeSizeLarge},
		{"large by limits", "do the thing", 10, 1000, models.ChangeSizeLarge},
		{"no keyword, within medium limits", "xyzzy plugh", 2, 120, models.ChangeSizeMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			size, _, cost := classifyChangeSize(tc.message, tc.numFiles, tc.totalLines)
			assert.Equal(t, tc.wantSize, size)
			assert.True(t, cost.IsPositive())
		})
	}
}

func TestClassifyChangeSize_Costs(t *testing.T) {
	_, _, small := classifyChangeSize("change the title", 1, 10)
	_, _, medium := classifyChangeSize("add a page", 2, 100)
	_, _, large := classifyChangeSize("restructure everything", 20, 2000)

	assert.True(t, small.LessThan(medium))
	assert.True(t, medium.LessThan(large))
}

func TestDiffLineCount(t *testing.T) {
	diff := models.CodeDiff{
		Modified: map[string]string{
			"a.tsx": "--- a/a.tsx\n+++ b/a.tsx\n@@ -1,2 +1,2 @@\n line one\n-line two\n+line changed\n",
		},
	}
	// one "\n+" from "+++ b/a.tsx", one from "+line changed", one "\n-" from "-line two".
	assert.Equal(t, 3, diffLineCount(diff))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Small", capitalize("small"))
	assert.Equal(t, "", capitalize(""))
}

func TestGenerateInitialSpec(t *testing.T) {
	spec := generateInitialSpec("a bakery storefront")
	assert.Len(t, spec.Pages, 4)
	assert.Len(t, spec.Components, 5)
	assert.Equal(t, "#3b82f6", spec.Theme.PrimaryColor)
	assert.Equal(t, "#f59e0b", spec.Theme.AccentColor)
}

func TestUpdateSpecFromMessage(t *testing.T) {
	spec := generateInitialSpec("initial")
	updated := updateSpecFromMessage(spec, "make the header sticky")

	assert.Equal(t, "make the header sticky", updated.LastUpdate)
	assert.False(t, updated.UpdatedAt.IsZero())
	assert.Equal(t, spec.Pages, updated.Pages)
}

func TestCollectProjectFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.tsx"), []byte("export default function Page() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET=1"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "index.js"), []byte("module.exports = {}"), 0o644))

	files, err := collectProjectFiles(dir)
	require.NoError(t, err)

	assert.Contains(t, files, "page.tsx")
	assert.NotContains(t, files, ".env")
	assert.NotContains(t, files, "node_modules/pkg/index.js")
}

func TestCollectProjectFiles_MissingDir(t *testing.T) {
	files, err := collectProjectFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestInitializeProjectDirectory(t *testing.T) {
	templatesDir := t.TempDir()
	templatePath := filepath.Join(templatesDir, stableTemplate)
	require.NoError(t, os.MkdirAll(filepath.Join(templatePath, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(templatePath, "package.json"),
		[]byte(`{"name": "{{PROJECT_NAME_LOWER}}", "year": "{{YEAR}}"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(templatePath, "app", "layout.tsx"),
		[]byte(`const theme = { primary: "{{PRIMARY_COLOR}}", accent: "{{ACCENT_COLOR}}" };`), 0o644))

	o := &Orchestrator{templatesDir: templatesDir}
	project := &models.Project{
		Name:          "Acme Storefront",
		InitialPrompt: "a storefront for selling pastries",
		CurrentSpec:   generateInitialSpec("a storefront for selling pastries"),
	}

	projectDir := filepath.Join(t.TempDir(), uuid.New().String())
	require.NoError(t, o.initializeProjectDirectory(project, projectDir))

	pkg, err := os.ReadFile(filepath.Join(projectDir, "package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(pkg), `"acme-storefront"`)
	assert.NotContains(t, string(pkg), "{{YEAR}}")

	layout, err := os.ReadFile(filepath.Join(projectDir, "app", "layout.tsx"))
	require.NoError(t, err)
	assert.Contains(t, string(layout), "#3b82f6")
	assert.Contains(t, string(layout), "#f59e0b")
}

func TestInitializeProjectDirectory_MissingTemplate(t *testing.T) {
	o := &Orchestrator{templatesDir: t.TempDir()}
	project := &models.Project{Name: "x", CurrentSpec: generateInitialSpec("x")}

	err := o.initializeProjectDirectory(project, filepath.Join(t.TempDir(), "proj"))
	assert.Error(t, err)
}
