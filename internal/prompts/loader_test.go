package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoaderShipsAllTemplates(t *testing.T) {
	loader, err := NewLoader(nil)
	require.NoError(t, err)

	for _, name := range []string{TemplateSystem, TemplateInstruction, TemplateObservation, TemplateFormatError} {
		rendered, err := loader.Render(name, nil)
		require.NoError(t, err, "template %s", name)
		require.NotEmpty(t, rendered)
	}
}

func TestRenderSubstitutesVariables(t *testing.T) {
	loader, err := NewLoader(nil)
	require.NoError(t, err)

	rendered, err := loader.Render(TemplateInstruction, map[string]string{
		"task":          "fix the bug",
		"working_dir":   "/repo",
		"submit_marker": "MINI_FINAL_OUTPUT",
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "fix the bug")
	require.Contains(t, rendered, "/repo")
	require.Contains(t, rendered, "MINI_FINAL_OUTPUT")
	require.NotContains(t, rendered, "{{")
}

func TestRenderUnknownTemplate(t *testing.T) {
	loader, err := NewLoader(nil)
	require.NoError(t, err)

	_, err = loader.Render("does-not-exist", nil)
	require.Error(t, err)
}

func TestOverridesReplaceEmbeddedTemplates(t *testing.T) {
	loader, err := NewLoader(map[string]string{
		TemplateSystem: "custom system prompt for {{task}}",
	})
	require.NoError(t, err)

	rendered, err := loader.Render(TemplateSystem, map[string]string{"task": "x"})
	require.NoError(t, err)
	require.Equal(t, "custom system prompt for x", rendered)
}
