package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDeployerConfigDefaults(t *testing.T) {
	cfg, err := LoadDeployerConfig()
	require.NoError(t, err)
	require.Equal(t, "default", cfg.DefaultNamespace)
	require.Equal(t, 100, cfg.LogTailLines)
	require.Equal(t, 30*time.Minute, cfg.EvaluationDelay())
	require.Equal(t, 3, cfg.EvaluationMaxAttempts)
	require.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	require.Equal(t, 16, cfg.ReconcileConcurrency)
	require.Equal(t, 3, cfg.JobMaxFailures)
}

func TestLoadDeployerConfigEnvOverride(t *testing.T) {
	t.Setenv("JOB_MAX_FAILURES", "7")
	t.Setenv("DEFAULT_NAMESPACE", "benchmarks")
	t.Setenv("EVALUATION_DELAY_MINUTES", "45")
	t.Setenv("DEPLOYMENT_TIMEOUT", "120")
	cfg, err := LoadDeployerConfig()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.JobMaxFailures)
	require.Equal(t, "benchmarks", cfg.DefaultNamespace)
	require.Equal(t, 45*time.Minute, cfg.EvaluationDelay())
	require.Equal(t, 120*time.Second, cfg.DeploymentTimeout())
}

func TestLoadVLLMConfigDefaults(t *testing.T) {
	cfg, err := LoadVLLMConfig()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.VLLMMaxFailures)
}

func TestLoadBridgeConfigDefaults(t *testing.T) {
	cfg, err := LoadBridgeConfig()
	require.NoError(t, err)
	require.Equal(t, 60*time.Second, cfg.PollingInterval())
	require.Equal(t, "template", cfg.TemplateDir)
}
