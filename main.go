package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mht-extract/cmd"
	"github.com/dhcgn/mht-extract/config"
	"github.com/dhcgn/mht-extract/convert"
	"github.com/dhcgn/mht-extract/filter"
	"github.com/dhcgn/mht-extract/mht"
	"github.com/dhcgn/mht-extract/output"
	"github.com/dhcgn/mht-extract/progress"
	"github.com/dhcgn/mht-extract/runner"
	"github.com/dhcgn/mht-extract/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mht-extract [options] <path-to-mht>",
		Short:         "Extract html documents and embedded images from an MHT archive",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, args)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("extract resources from", "mht", cfg.MhtPath, "dryRun", cfg.DryRun)
			logger.Info("html will be extracted to", "dir", cfg.HTMLDir)
			logger.Info("images will be extracted to", "dir", cfg.AttachmentDir)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewStatsCommand(), cmd.NewConvertCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	var sink mht.Sink = &output.Discard{}
	if !cfg.DryRun {
		dirs, err := output.NewDirs(cfg.HTMLDir, cfg.AttachmentDir)
		if err != nil {
			return err
		}
		sink = dirs
	}

	f, err := filter.New(filter.Options{Include: cfg.Include, Exclude: cfg.Exclude})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}

	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)

	if cfg.Progress {
		total, err := mht.CountParts(cfg.MhtPath)
		if err != nil {
			return fmt.Errorf("mht.CountParts: %w", err)
		}
		progress.NewReporter(r, progress.New(total, cfg.LogLevel, cfg.Progress))
	}

	opts := mht.Options{
		Workers:      cfg.Workers,
		KeepNewlines: cfg.KeepNewlines,
		NamePolicy:   mht.NameUpper,
		Filter:       f,
	}
	if cfg.NameCase == config.NameCasePreserve {
		opts.NamePolicy = mht.NamePreserve
	}

	producer, err := mht.NewProducer(cfg.MhtPath, sink, opts, r, logger)
	if err != nil {
		return fmt.Errorf("mht.NewProducer: %w", err)
	}

	if err := r.Start(); err != nil {
		return err
	}
	if cfg.MarkdownDir == "" || cfg.DryRun {
		return nil
	}
	return convertHTML(cfg, producer.Result().HTML, logger)
}

// convertHTML turns the html documents of this run into markdown.
func convertHTML(cfg config.Config, count int, logger *slog.Logger) error {
	logger.Info("markdown will be written to", "dir", cfg.MarkdownDir)

	conv, err := convert.NewConverter(cfg.AttachmentDir, cfg.MarkdownDir, logger, convert.Options{Charset: cfg.Charset})
	if err != nil {
		return fmt.Errorf("convert.NewConverter: %w", err)
	}
	for i := 1; i <= count; i++ {
		path := filepath.Join(cfg.HTMLDir, mht.HTMLName(i))
		if _, err := conv.ConvertFile(context.Background(), path); err != nil {
			return err
		}
	}

	logger.Info("markdown conversion completed", conv.Result().LogAttrs()...)
	return nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mht-extract-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}
