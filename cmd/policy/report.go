package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cartridge/rrc-policy/internal/recorder"
	"github.com/cartridge/rrc-policy/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <steps.db>",
	Short: "Plot the recorded actions of an episode",
	Long: `Reads a sqlite step recording and plots each joint's action against the
step number. Without --episode the most recently started episode is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().String("episode", "", "Episode ID to plot")
	reportCmd.Flags().String("out", "actions.png", "Output image (png, svg or pdf)")
}

func runReport(cmd *cobra.Command, args []string) error {
	episode, _ := cmd.Flags().GetString("episode")
	out, _ := cmd.Flags().GetString("out")
	ctx := context.Background()

	if _, err := os.Stat(args[0]); err != nil {
		return err
	}
	backend, err := recorder.OpenSQLite(args[0])
	if err != nil {
		return err
	}
	defer backend.Close()

	if episode == "" {
		episodes, err := backend.Episodes(ctx)
		if err != nil {
			return err
		}
		if len(episodes) == 0 {
			return fmt.Errorf("%s: %w", args[0], report.ErrEmpty)
		}
		episode = episodes[len(episodes)-1]
	}

	steps, err := backend.Episode(ctx, episode)
	if err != nil {
		return err
	}
	stats, err := report.Summarize(steps)
	if err != nil {
		return err
	}
	if err := report.PlotActions("Episode "+episode, steps, out); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "episode %s: %d steps -> %s\n", episode, len(steps), out)
	for j, s := range stats {
		fmt.Fprintf(os.Stdout, "  joint %d  min %+.4f  max %+.4f  mean %+.4f\n", j, s.Min, s.Max, s.Mean)
	}
	return nil
}
