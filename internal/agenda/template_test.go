package agenda

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateApply(t *testing.T) {
	tmpl := CompileTemplate([]string{"cp", "$src", "$dst"})
	cmd, err := tmpl.Apply(map[string][]string{
		"src": {"a.txt"},
		"dst": {"b.txt"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"cp", "a.txt", "b.txt"}, cmd)
}

func TestTemplateApplyQuotesSpaces(t *testing.T) {
	tmpl := CompileTemplate([]string{"echo", "$msg"})
	cmd, err := tmpl.Apply(map[string][]string{
		"msg": {"hello world", "again"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"echo", "hello world", "again"}, cmd)
}

func TestTemplateApplyMissingArgument(t *testing.T) {
	tmpl := CompileTemplate([]string{"cp", "$src", "$dst"})
	_, err := tmpl.Apply(map[string][]string{"src": {"a.txt"}})
	require.Error(t, err)
}

func TestTemplateApplyDropsEmptyParts(t *testing.T) {
	tmpl := CompileTemplate([]string{"cmd", "$flag"})
	cmd, err := tmpl.Apply(map[string][]string{"flag": {}})
	require.NoError(t, err)
	require.Equal(t, []string{"cmd"}, cmd)
}
