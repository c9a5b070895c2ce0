package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/rrc-policy/internal/config"
	"github.com/cartridge/rrc-policy/internal/events"
	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/policy"
	"github.com/cartridge/rrc-policy/internal/recorder"
)

var (
	v          = viper.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "policy",
	Short: "RRC 2022 lift policy runtime",
	Long: `Loads a pretrained lift-task policy (behaviour cloning, PLAS or a latent
actor with its VAE decoder) and maps 139-value observations to 9 joint
torques bounded by max_action.

Configuration is read from defaults, then --config, then RRCPOLICY_*
environment variables (e.g. RRCPOLICY_POLICY_KIND), then flags.`,
	SilenceUsage: true,
}

func init() {
	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")

	// Policy settings
	flags.String("kind", d.Policy.Kind, "Policy kind (bc, plas, latent, latent_perturbation, random)")
	flags.String("dir", d.Policy.Directory, "Directory holding the model files")
	flags.String("adapter", d.Policy.Adapter, "Observation adapter (identity, cut_expert, cut_plas, append_keypoints)")
	flags.Float64("max-action", d.Policy.MaxAction, "Torque bound for latent policies")

	// Recording
	flags.String("recorder", d.Recorder.Backend, "Step recorder backend (none, memory, sqlite)")
	flags.String("recorder-path", d.Recorder.Path, "Sqlite recorder database path")

	// Events
	flags.String("nats-url", d.Events.NATSURL, "NATS server for episode events (empty disables)")

	// Logging
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")

	bind("policy.kind", "kind")
	bind("policy.directory", "dir")
	bind("policy.adapter", "adapter")
	bind("policy.max_action", "max-action")
	bind("recorder.backend", "recorder")
	bind("recorder.path", "recorder-path")
	bind("events.nats_url", "nats-url")
	bind("log_level", "log-level")

	rootCmd.AddCommand(serveCmd, actCmd, inspectCmd, reportCmd)
}

func bind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// buildPolicy loads the configured policy and, when a recorder backend is
// configured, wraps it in a policy.Recording. The returned cleanup flushes
// and closes the recorder.
func buildPolicy(cfg *config.Config, logger zerolog.Logger) (policy.Policy, func(), error) {
	p, err := policy.New(cfg.Policy, policy.Space{}, policy.Space{}, cfg.Runner.EpisodeLength, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create policy: %w", err)
	}

	backend, err := recorder.Open(cfg.Recorder.Backend, cfg.Recorder.Path, cfg.Recorder.MaxSteps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open recorder: %w", err)
	}
	if backend == nil {
		return p, func() {}, nil
	}

	rec := policy.NewRecording(p, backend, cfg.Runner.BatchSize, logger)
	cleanup := func() {
		if err := rec.Flush(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to flush recorder")
		}
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing recorder")
		}
	}
	logger.Info().Str("backend", cfg.Recorder.Backend).Msg("Recording steps")
	return rec, cleanup, nil
}

// newCollector returns a metrics collector, publishing episode events to
// NATS when events.nats_url is set. The returned close func releases the
// connection.
func newCollector(cfg *config.Config, logger zerolog.Logger) (*metrics.Collector, func(), error) {
	collector := metrics.NewCollector(logger)
	if cfg.Events.NATSURL == "" {
		return collector, func() {}, nil
	}
	pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Events.NATSURL, err)
	}
	logger.Info().Str("url", cfg.Events.NATSURL).Str("subject", cfg.Events.Subject).Msg("Publishing episode events")
	return collector.WithPublisher(pub), pub.Close, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
