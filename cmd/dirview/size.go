package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nicktill/dirview/pkg/dirsize"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/presenter"
	"github.com/nicktill/dirview/pkg/server"
)

func newSizeCommand(cfg *server.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size DIRECTORY [DIRECTORY...]",
		Short: "Print the total size of each directory tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := dirsize.ParseMode(cfg.SizeMode)
			if err != nil {
				return err
			}
			return runSize(cmd.Context(), cmd.OutOrStdout(), dirsize.New(mode), args)
		},
	}

	cmd.Flags().StringVar(&cfg.SizeMode, "size-mode", cfg.SizeMode, "Byte accounting (apparent, allocated)")
	return cmd
}

// runSize prints one "<path>\t<size>\t<human>" line per path.
func runSize(ctx context.Context, out io.Writer, computer *dirsize.Computer, paths []string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}

		res, err := computer.Compute(ctx, abs)
		if err != nil {
			return err
		}
		if res.Partial {
			logging.S().Warnw("some entries could not be read",
				"path", abs,
				"skipped", res.SkippedCount,
				"sample", res.Skipped)
		}

		fmt.Fprintln(out, formatSizeLine(abs, res))
	}
	return nil
}

func formatSizeLine(path string, res dirsize.Result) string {
	human := presenter.HumanSize(res.TotalBytes)
	if res.Unknown {
		human = "-"
	}
	display := presenter.FormatDirSize(res.TotalBytes, res.Partial, res.Unknown)
	return fmt.Sprintf("%s\t%s\t%s", path, display, human)
}
