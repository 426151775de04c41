package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/eventstream/nop"
	"github.com/Gidwell/jiro/internal/testutil"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	loader, err := config.NewConfigLoader(testutil.SetupTestConfig(t, t.TempDir()))
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)
	return cfg
}

func TestBuild(t *testing.T) {
	cfg := loadTestConfig(t)

	components, err := Build(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, components.Close()) })

	assert.IsType(t, &nop.Publisher{}, components.Publisher)
	require.NotNil(t, components.Tutor)

	welcome, err := components.Tutor.StartTalk(context.Background(), 7, "Mika")
	require.NoError(t, err)
	assert.True(t, welcome.New)
	assert.Positive(t, welcome.DueCount)
	assert.Equal(t, 1, components.Sessions.ActiveCount())

	families, err := components.Metrics.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "jiro_active_sessions")
	assert.Contains(t, names, "go_goroutines")
}

func TestBuild_BadSeedFile(t *testing.T) {
	cfg := loadTestConfig(t)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("items: ["), 0644))
	cfg.Curriculum.SeedFile = seed

	_, err := Build(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "curriculum.LoadSeed")
}

func TestOpenStores_UnsupportedBackend(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Database.Backend = "oracle"

	_, err := OpenStores(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.Open")
}

func TestNewPublisher(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EventStreamConfig
		wantErr string
	}{
		{name: "none", cfg: config.EventStreamConfig{Backend: "none"}},
		{name: "empty backend", cfg: config.EventStreamConfig{}},
		{name: "kafka", cfg: config.EventStreamConfig{Backend: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "jiro.turns"}},
		{name: "kafka without brokers", cfg: config.EventStreamConfig{Backend: "kafka", KafkaTopic: "jiro.turns"}, wantErr: "kafka.NewPublisher"},
		{name: "unknown", cfg: config.EventStreamConfig{Backend: "nats"}, wantErr: "unsupported event stream backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher, err := NewPublisher(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, publisher.Close())
		})
	}
}

func TestSetupLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "jiro.log")
	closer := SetupLogger(config.LoggingConfig{File: logFile, MaxSizeMB: 1}, true)
	t.Cleanup(func() { SetupLogger(config.LoggingConfig{}, false) })

	slog.Default().Info("hello", "learner_id", 3)
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "msg=hello")
	assert.Contains(t, string(content), "learner_id=3")
}
