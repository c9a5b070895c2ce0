package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/userhome/model_9271816_actor.pth", cfg.Policy.Path(cfg.Policy.ActorFile))
	assert.Equal(t, "/abs/vae.pth", cfg.Policy.Path("/abs/vae.pth"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown kind", func(c *Config) { c.Policy.Kind = "sac" }},
		{"bc without params", func(c *Config) { c.Policy.Kind = "bc"; c.Policy.ParamsFile = "" }},
		{"latent without decoder", func(c *Config) { c.Policy.DecoderFile = "" }},
		{"perturbation without phi", func(c *Config) { c.Policy.Kind = "latent_perturbation"; c.Policy.Phi = 0 }},
		{"zero max action", func(c *Config) { c.Policy.MaxAction = 0 }},
		{"zero action dim", func(c *Config) { c.Policy.ActionDim = 0 }},
		{"unknown recorder", func(c *Config) { c.Recorder.Backend = "redis" }},
		{"sqlite without path", func(c *Config) { c.Recorder.Backend = "sqlite"; c.Recorder.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Recorder.Backend = "postgres"; c.Recorder.Path = "" }},
		{"nats without subject", func(c *Config) { c.Events.NATSURL = "nats://localhost:4222"; c.Events.Subject = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero batch", func(c *Config) { c.Runner.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
policy:
  kind: bc
  directory: /models
  adapter: cut_expert
  max_action: 1.0
server:
  shutdown_timeout: 5s
`), 0o644))

	t.Setenv("RRCPOLICY_POLICY_WEIGHTS_FILE", "model_override.pt")
	t.Setenv("RRCPOLICY_RECORDER_BACKEND", "memory")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "bc", cfg.Policy.Kind)
	assert.Equal(t, "cut_expert", cfg.Policy.Adapter)
	assert.Equal(t, 1.0, cfg.Policy.MaxAction)
	assert.Equal(t, "/models/model_override.pt", cfg.Policy.Path(cfg.Policy.WeightsFile))
	assert.Equal(t, "memory", cfg.Recorder.Backend)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	// untouched keys keep their defaults
	assert.Equal(t, 9, cfg.Policy.ActionDim)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
