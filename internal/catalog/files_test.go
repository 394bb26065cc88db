package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func templateYAML(id string) string {
	return `
templates:
  - id: ` + id + `
    name: Template ` + id + `
    frequency: daily
    interval: 1
    start_date: 2024-01-01
`
}

func TestBaseDir(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"catalog/*.yaml", "catalog"},
		{"catalog/**/*.yaml", "catalog"},
		{"catalog/site-?/a.yaml", "catalog"},
		{"catalog/templates.yaml", "catalog"},
		{"*.yaml", "."},
		{"/etc/maintrack/*.yaml", "/etc/maintrack"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			require.Equal(t, tt.want, baseDir(tt.pattern))
		})
	}
}

func TestPattern_Files(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), templateYAML("a"))
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignore me")
	writeFile(t, filepath.Join(dir, "site", "b.yaml"), templateYAML("b"))

	flat, err := CompilePattern(filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)
	files, err := flat.Files()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files)

	nested, err := CompilePattern(filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err)
	files, err = nested.Files()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "site", "b.yaml")}, files)

	require.True(t, nested.Match(filepath.Join(dir, "x", "y", "c.yaml")))
	require.False(t, nested.Match(filepath.Join(dir, "x", "c.yml")))
}

func TestPattern_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), templateYAML("a"))
	writeFile(t, filepath.Join(dir, "b.yaml"), templateYAML("b"))

	p, err := CompilePattern(filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)

	defs, err := p.Load()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "a", defs[0].ID)
	require.Equal(t, filepath.Join(dir, "a.yaml"), defs[0].Source)
}

func TestPattern_LoadDuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), templateYAML("same"))
	writeFile(t, filepath.Join(dir, "b.yaml"), templateYAML("same"))

	p, err := CompilePattern(filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)

	_, err = p.Load()
	require.True(t, errors.Is(err, ErrInvalidDefinition), "got %v", err)
}
