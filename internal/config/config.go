package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// RRCPOLICY_POLICY_KIND.
const EnvPrefix = "RRCPOLICY"

// Config holds all policy runner configuration
type Config struct {
	Policy   PolicyConfig   `mapstructure:"policy"`
	Server   ServerConfig   `mapstructure:"server"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Events   EventsConfig   `mapstructure:"events"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// PolicyConfig describes which model to load and how to feed it. File names
// are resolved relative to Directory.
type PolicyConfig struct {
	Kind      string `mapstructure:"kind"`
	Directory string `mapstructure:"directory"`

	// d3rlpy checkpoints (bc, plas)
	WeightsFile string `mapstructure:"weights_file"`
	ParamsFile  string `mapstructure:"params_file"`

	// actor + VAE state dicts (latent, latent_perturbation)
	ActorFile   string `mapstructure:"actor_file"`
	DecoderFile string `mapstructure:"decoder_file"`

	Adapter string `mapstructure:"adapter"`

	ObservationDim  int     `mapstructure:"observation_dim"`
	ActionDim       int     `mapstructure:"action_dim"`
	LatentDim       int     `mapstructure:"latent_dim"`
	MaxAction       float64 `mapstructure:"max_action"`
	MaxLatentAction float64 `mapstructure:"max_latent_action"`
	Phi             float64 `mapstructure:"phi"`

	// Seed only affects the random baseline.
	Seed int64 `mapstructure:"seed"`
}

// Path joins name onto Directory unless name is already absolute.
func (p PolicyConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.Directory, name)
}

// ServerConfig holds the network transport configuration
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RecorderConfig selects where observed steps are recorded
type RecorderConfig struct {
	Backend  string `mapstructure:"backend"` // none, memory, sqlite, postgres
	Path     string `mapstructure:"path"`    // sqlite file or postgres DSN
	MaxSteps uint64 `mapstructure:"max_steps"`
}

// RunnerConfig controls the offline evaluation loop
type RunnerConfig struct {
	EpisodeLength int `mapstructure:"episode_length"`
	MaxEpisodes   int `mapstructure:"max_episodes"`
	BatchSize     int `mapstructure:"batch_size"`
}

// EventsConfig controls episode event fan-out. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// Default returns a config matching the lift-task latent policy deployment
func Default() *Config {
	return &Config{
		Policy: PolicyConfig{
			Kind:            "latent",
			Directory:       "/userhome",
			WeightsFile:     "model_8261630.pt",
			ParamsFile:      "params_8261630.json",
			ActorFile:       "model_9271816_actor.pth",
			DecoderFile:     "model_9271816_vae.pth",
			Adapter:         "append_keypoints",
			ObservationDim:  139,
			ActionDim:       9,
			LatentDim:       18,
			MaxAction:       0.397,
			MaxLatentAction: 2,
			Phi:             0.05,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Recorder: RecorderConfig{
			Backend:  "none",
			Path:     "steps.db",
			MaxSteps: 100000,
		},
		Runner: RunnerConfig{
			EpisodeLength: 15000,
			MaxEpisodes:   -1, // unlimited
			BatchSize:     256,
		},
		Events: EventsConfig{
			Subject: "rrcpolicy.episodes",
		},
		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	p := c.Policy
	switch p.Kind {
	case "bc", "plas":
		if p.WeightsFile == "" || p.ParamsFile == "" {
			errs = append(errs, fmt.Errorf("policy.weights_file and policy.params_file are required for %s", p.Kind))
		}
	case "latent", "latent_perturbation":
		if p.ActorFile == "" || p.DecoderFile == "" {
			errs = append(errs, fmt.Errorf("policy.actor_file and policy.decoder_file are required for %s", p.Kind))
		}
		if p.LatentDim <= 0 {
			errs = append(errs, fmt.Errorf("policy.latent_dim must be positive"))
		}
		if p.MaxLatentAction <= 0 {
			errs = append(errs, fmt.Errorf("policy.max_latent_action must be positive"))
		}
	case "random":
	default:
		errs = append(errs, fmt.Errorf("unknown policy.kind %q", p.Kind))
	}
	if p.Kind == "latent_perturbation" && p.Phi <= 0 {
		errs = append(errs, fmt.Errorf("policy.phi must be positive"))
	}
	if p.ObservationDim <= 0 {
		errs = append(errs, fmt.Errorf("policy.observation_dim must be positive"))
	}
	if p.ActionDim <= 0 {
		errs = append(errs, fmt.Errorf("policy.action_dim must be positive"))
	}
	if p.MaxAction <= 0 {
		errs = append(errs, fmt.Errorf("policy.max_action must be positive"))
	}

	switch c.Recorder.Backend {
	case "none", "memory":
	case "sqlite", "postgres":
		if c.Recorder.Path == "" {
			errs = append(errs, fmt.Errorf("recorder.path is required for %s", c.Recorder.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown recorder.backend %q", c.Recorder.Backend))
	}

	if c.Runner.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("runner.batch_size must be positive"))
	}
	if c.Runner.EpisodeLength < 0 {
		errs = append(errs, fmt.Errorf("runner.episode_length must not be negative"))
	}
	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		errs = append(errs, fmt.Errorf("events.subject is required when events.nats_url is set"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Load layers defaults, an optional config file, RRCPOLICY_* environment
// variables and any flags already bound to v, then validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers every Default() value with v, which also makes the
// keys visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("policy.kind", d.Policy.Kind)
	v.SetDefault("policy.directory", d.Policy.Directory)
	v.SetDefault("policy.weights_file", d.Policy.WeightsFile)
	v.SetDefault("policy.params_file", d.Policy.ParamsFile)
	v.SetDefault("policy.actor_file", d.Policy.ActorFile)
	v.SetDefault("policy.decoder_file", d.Policy.DecoderFile)
	v.SetDefault("policy.adapter", d.Policy.Adapter)
	v.SetDefault("policy.observation_dim", d.Policy.ObservationDim)
	v.SetDefault("policy.action_dim", d.Policy.ActionDim)
	v.SetDefault("policy.latent_dim", d.Policy.LatentDim)
	v.SetDefault("policy.max_action", d.Policy.MaxAction)
	v.SetDefault("policy.max_latent_action", d.Policy.MaxLatentAction)
	v.SetDefault("policy.phi", d.Policy.Phi)
	v.SetDefault("policy.seed", d.Policy.Seed)

	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("recorder.backend", d.Recorder.Backend)
	v.SetDefault("recorder.path", d.Recorder.Path)
	v.SetDefault("recorder.max_steps", d.Recorder.MaxSteps)

	v.SetDefault("runner.episode_length", d.Runner.EpisodeLength)
	v.SetDefault("runner.max_episodes", d.Runner.MaxEpisodes)
	v.SetDefault("runner.batch_size", d.Runner.BatchSize)

	v.SetDefault("events.nats_url", d.Events.NATSURL)
	v.SetDefault("events.subject", d.Events.Subject)
}
