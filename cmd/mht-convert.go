package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mht-extract/convert"
)

// NewConvertCommand returns the mht-convert subcommand.
func NewConvertCommand() *cobra.Command {
	var (
		imageDir    string
		markdownDir string
		charset     string
	)

	cmd := &cobra.Command{
		Use:   "mht-convert [html file or dir]...",
		Short: "Convert extracted QQ chat log html into one markdown file per day",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

			paths, err := expandHTMLPaths(args)
			if err != nil {
				return err
			}

			conv, err := convert.NewConverter(imageDir, markdownDir, logger, convert.Options{Charset: charset})
			if err != nil {
				return err
			}
			for _, path := range paths {
				if _, err := conv.ConvertFile(context.Background(), path); err != nil {
					return fmt.Errorf("error converting %s: %w", path, err)
				}
			}

			res := conv.Result()
			fmt.Fprintf(out, "Converted %d html file(s) into %s\n", res.Files, markdownDir)
			fmt.Fprintf(out, "Days: %d, messages: %d, system: %d\n", res.Days, res.Messages, res.System)
			fmt.Fprintf(out, "Images: %d linked, %d expired\n", res.Images, res.Expired)
			fmt.Fprintf(out, "Skipped: %d, warnings: %d\n", res.Skipped, res.Warnings)
			return nil
		},
	}

	cmd.Flags().StringVarP(&imageDir, "image-dir", "i", "res", "Directory holding the extracted images")
	cmd.Flags().StringVarP(&markdownDir, "markdown-dir", "o", "md", "Where to place the per-day markdown files")
	cmd.Flags().StringVar(&charset, "charset", "utf-8", "Encoding of the html input: utf-8, auto, or a label such as gbk")
	return cmd
}

// expandHTMLPaths replaces directory arguments with the html files inside.
func expandHTMLPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", convert.ErrInputUnavailable, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		files, err := convert.HTMLFiles(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	return paths, nil
}
