package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	NameCaseUpper    = "upper"
	NameCasePreserve = "preserve"
)

// Config captures all command-line options required to run the extractor.
type Config struct {
	MhtPath       string
	HTMLDir       string
	AttachmentDir string
	LogLevel      string
	LogDir        string
	Workers       int
	KeepNewlines  bool
	NameCase      string
	Include       []string
	Exclude       []string
	DryRun        bool
	Progress      bool
	MarkdownDir   string
	Charset       string
}

// fileConfig mirrors Config for the optional YAML file. Pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	HTMLDir       *string  `yaml:"html_dir"`
	AttachmentDir *string  `yaml:"attachment_dir"`
	LogLevel      *string  `yaml:"log_level"`
	LogDir        *string  `yaml:"log_dir"`
	Workers       *int     `yaml:"workers"`
	KeepNewlines  *bool    `yaml:"keep_newlines"`
	NameCase      *string  `yaml:"name_case"`
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	DryRun        *bool    `yaml:"dry_run"`
	Progress      *bool    `yaml:"progress"`
	MarkdownDir   *string  `yaml:"markdown_dir"`
	Charset       *string  `yaml:"charset"`
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("config", "", "Optional YAML file with default option values")
	flags.StringP("html-dir", "H", "html", "Where to place the extracted html docs")
	flags.StringP("attachment-dir", "A", "res", "Where to place the extracted attachments")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stderr only when empty)")
	flags.Int("workers", 1, "Number of concurrent image decode/write workers")
	flags.Bool("keep-newlines", false, "Re-insert line breaks when writing html documents")
	flags.String("name-case", NameCaseUpper, "Image base name policy: upper, preserve")
	flags.StringArray("include", nil, "Regex allow-list applied to Content-Location (mutually exclusive with --exclude)")
	flags.StringArray("exclude", nil, "Regex block-list applied to Content-Location (mutually exclusive with --include)")
	flags.Bool("dry-run", false, "Parse the archive and report parts without writing files")
	flags.Bool("progress", false, "Show a progress bar (log level info only)")
	flags.String("markdown-dir", "", "Convert the extracted chat log html into per-day markdown files in this directory")
	flags.String("charset", "utf-8", "Encoding of the html documents for --markdown-dir: utf-8, auto, or a label such as gbk")
	return nil
}

// LoadConfig converts the parsed Cobra flags and positional arguments into a
// Config struct with validation. Values from --config act as defaults that
// explicitly set flags override.
func LoadConfig(cmd *cobra.Command, args []string) (Config, error) {
	flags := cmd.Flags()

	if len(args) != 1 {
		return Config{}, fmt.Errorf("expected exactly one <path-to-mht> argument, got %d", len(args))
	}

	htmlDir, err := flags.GetString("html-dir")
	if err != nil {
		return Config{}, err
	}
	attachmentDir, err := flags.GetString("attachment-dir")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return Config{}, err
	}
	keepNewlines, err := flags.GetBool("keep-newlines")
	if err != nil {
		return Config{}, err
	}
	nameCase, err := flags.GetString("name-case")
	if err != nil {
		return Config{}, err
	}
	include, err := flags.GetStringArray("include")
	if err != nil {
		return Config{}, err
	}
	exclude, err := flags.GetStringArray("exclude")
	if err != nil {
		return Config{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Config{}, err
	}
	progress, err := flags.GetBool("progress")
	if err != nil {
		return Config{}, err
	}
	markdownDir, err := flags.GetString("markdown-dir")
	if err != nil {
		return Config{}, err
	}
	charsetLabel, err := flags.GetString("charset")
	if err != nil {
		return Config{}, err
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		MhtPath:       args[0],
		HTMLDir:       htmlDir,
		AttachmentDir: attachmentDir,
		LogLevel:      logLevel,
		LogDir:        logDir,
		Workers:       workers,
		KeepNewlines:  keepNewlines,
		NameCase:      nameCase,
		Include:       include,
		Exclude:       exclude,
		DryRun:        dryRun,
		Progress:      progress,
		MarkdownDir:   markdownDir,
		Charset:       charsetLabel,
	}

	if configPath != "" {
		fc, err := readFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
		cfg = merge(cfg, fc, func(name string) bool { return flags.Changed(name) })
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.NameCase = strings.ToLower(cfg.NameCase)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	cfg.HTMLDir = filepath.Clean(cfg.HTMLDir)
	cfg.AttachmentDir = filepath.Clean(cfg.AttachmentDir)
	if cfg.MarkdownDir != "" {
		cfg.MarkdownDir = filepath.Clean(cfg.MarkdownDir)
	}

	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig

	file, err := os.Open(path)
	if err != nil {
		return fc, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func merge(cfg Config, fc fileConfig, changed func(string) bool) Config {
	if fc.HTMLDir != nil && !changed("html-dir") {
		cfg.HTMLDir = *fc.HTMLDir
	}
	if fc.AttachmentDir != nil && !changed("attachment-dir") {
		cfg.AttachmentDir = *fc.AttachmentDir
	}
	if fc.LogLevel != nil && !changed("log-level") {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogDir != nil && !changed("log-dir") {
		cfg.LogDir = *fc.LogDir
	}
	if fc.Workers != nil && !changed("workers") {
		cfg.Workers = *fc.Workers
	}
	if fc.KeepNewlines != nil && !changed("keep-newlines") {
		cfg.KeepNewlines = *fc.KeepNewlines
	}
	if fc.NameCase != nil && !changed("name-case") {
		cfg.NameCase = *fc.NameCase
	}
	if fc.Include != nil && !changed("include") {
		cfg.Include = fc.Include
	}
	if fc.Exclude != nil && !changed("exclude") {
		cfg.Exclude = fc.Exclude
	}
	if fc.DryRun != nil && !changed("dry-run") {
		cfg.DryRun = *fc.DryRun
	}
	if fc.Progress != nil && !changed("progress") {
		cfg.Progress = *fc.Progress
	}
	if fc.MarkdownDir != nil && !changed("markdown-dir") {
		cfg.MarkdownDir = *fc.MarkdownDir
	}
	if fc.Charset != nil && !changed("charset") {
		cfg.Charset = *fc.Charset
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.MhtPath) == "" {
		return fmt.Errorf("<path-to-mht> is required")
	}
	if strings.TrimSpace(cfg.HTMLDir) == "" {
		return fmt.Errorf("--html-dir must not be empty")
	}
	if strings.TrimSpace(cfg.AttachmentDir) == "" {
		return fmt.Errorf("--attachment-dir must not be empty")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	includeActive := len(cfg.Include) > 0
	excludeActive := len(cfg.Exclude) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.NameCase {
	case NameCaseUpper, NameCasePreserve:
	default:
		return fmt.Errorf("invalid --name-case: %s", cfg.NameCase)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
