package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommand(t *testing.T, flagArgs ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, RegisterFlags(cmd))
	require.NoError(t, cmd.ParseFlags(flagArgs))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cmd := newCommand(t)

	cfg, err := LoadConfig(cmd, []string{"chat.mht"})
	require.NoError(t, err)

	assert.Equal(t, "chat.mht", cfg.MhtPath)
	assert.Equal(t, "html", cfg.HTMLDir)
	assert.Equal(t, "res", cfg.AttachmentDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, NameCaseUpper, cfg.NameCase)
	assert.False(t, cfg.KeepNewlines)
	assert.False(t, cfg.DryRun)
	assert.Empty(t, cfg.MarkdownDir)
	assert.Equal(t, "utf-8", cfg.Charset)
}

func TestLoadConfig_ShortFlags(t *testing.T) {
	cmd := newCommand(t, "-H", "out/html", "-A", "out/img", "--log-level", "WARNING")

	cfg, err := LoadConfig(cmd, []string{"chat.mht"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("out/html"), cfg.HTMLDir)
	assert.Equal(t, filepath.Clean("out/img"), cfg.AttachmentDir)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_MissingArgument(t *testing.T) {
	cmd := newCommand(t)

	_, err := LoadConfig(cmd, nil)
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "zero workers", args: []string{"--workers", "0"}},
		{name: "bad log level", args: []string{"--log-level", "loud"}},
		{name: "bad name case", args: []string{"--name-case", "lower"}},
		{name: "include and exclude", args: []string{"--include", "a", "--exclude", "b"}},
		{name: "empty html dir", args: []string{"--html-dir", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newCommand(t, tt.args...)
			_, err := LoadConfig(cmd, []string{"chat.mht"})
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_YAMLFileWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mht-extract.yaml")
	content := `html_dir: from-file-html
attachment_dir: from-file-res
workers: 4
name_case: preserve
markdown_dir: from-file-md
charset: gbk
exclude:
  - "^http"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cmd := newCommand(t, "--config", path, "--workers", "2")
	cfg, err := LoadConfig(cmd, []string{"chat.mht"})
	require.NoError(t, err)

	assert.Equal(t, "from-file-html", cfg.HTMLDir)
	assert.Equal(t, "from-file-res", cfg.AttachmentDir)
	assert.Equal(t, 2, cfg.Workers, "explicit flag wins over file")
	assert.Equal(t, NameCasePreserve, cfg.NameCase)
	assert.Equal(t, []string{"^http"}, cfg.Exclude)
	assert.Equal(t, "from-file-md", cfg.MarkdownDir)
	assert.Equal(t, "gbk", cfg.Charset)
}

func TestLoadConfig_MarkdownDir(t *testing.T) {
	cmd := newCommand(t, "--markdown-dir", "out/md/", "--charset", "auto")

	cfg, err := LoadConfig(cmd, []string{"chat.mht"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("out/md"), cfg.MarkdownDir)
	assert.Equal(t, "auto", cfg.Charset)
}

func TestLoadConfig_YAMLUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("html_directory: x\n"), 0o644))

	cmd := newCommand(t, "--config", path)
	_, err := LoadConfig(cmd, []string{"chat.mht"})
	assert.Error(t, err)
}

func TestLoadConfig_YAMLMissingFile(t *testing.T) {
	cmd := newCommand(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := LoadConfig(cmd, []string{"chat.mht"})
	assert.Error(t, err)
}
