package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/testutil"
)

// setConfigFile sets the global configFile variable and registers a cleanup to restore it.
func setConfigFile(t *testing.T, cfgPath string) {
	t.Helper()
	oldConfigFile := configFile
	configFile = cfgPath
	t.Cleanup(func() { configFile = oldConfigFile })
}

// setupBrokenConfigFile creates a config file with invalid YAML that causes Load() to fail.
func setupBrokenConfigFile(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml content"), 0644))
	return cfgPath
}

// setupLearner points the commands at a fresh database holding one enrolled
// learner.
func setupLearner(t *testing.T, learnerID int64) {
	t.Helper()
	setConfigFile(t, testutil.SetupTestConfig(t, t.TempDir()))

	components, err := buildComponents()
	require.NoError(t, err)
	defer func() { require.NoError(t, components.Close()) }()
	_, err = components.Tutor.StartTalk(context.Background(), learnerID, "Mika")
	require.NoError(t, err)
}

