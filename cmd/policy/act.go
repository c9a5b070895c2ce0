package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cartridge/rrc-policy/internal/config"
	"github.com/cartridge/rrc-policy/internal/runner"
)

var actCmd = &cobra.Command{
	Use:   "act [observations.jsonl]",
	Short: "Run the policy over a JSON-lines observation stream",
	Long: `Reads one observation per line, either a bare JSON array or
{"episode": "...", "observation": [...]}, and writes one action line per
observation to stdout. Reads stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAct,
}

func init() {
	d := config.Default().Runner
	actCmd.Flags().Int("episode-length", d.EpisodeLength, "Reset after this many steps (0 disables)")
	actCmd.Flags().Int("max-episodes", d.MaxEpisodes, "Maximum episodes to run (-1 for unlimited)")
	actCmd.Flags().Int("batch-size", d.BatchSize, "Recorder batch size")
	_ = v.BindPFlag("runner.episode_length", actCmd.Flags().Lookup("episode-length"))
	_ = v.BindPFlag("runner.max_episodes", actCmd.Flags().Lookup("max-episodes"))
	_ = v.BindPFlag("runner.batch_size", actCmd.Flags().Lookup("batch-size"))
}

func runAct(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	p, cleanup, err := buildPolicy(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	collector, closeEvents, err := newCollector(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	r := runner.New(cfg.Runner, p, collector, logger)
	return r.Run(ctx, in, out)
}
