package config

import "time"

// DeployerConfig is the configuration for the benchmark-deployer
// binary: Config Sync Engine, Deployment Engine and Evaluation
// Scheduler.
type DeployerConfig struct {
	Shared `mapstructure:",squash"`

	// EvaluationDelayMinutes is how far in the future a newly
	// scheduled EvaluationTask's scheduled_at is set, relative to
	// creation. Defaults to 30.
	EvaluationDelayMinutes int `mapstructure:"evaluation_delay_minutes"`
	// EvaluationSweepInterval is how often the Evaluation Scheduler's
	// sweeper looks for due tasks. Defaults to 30s.
	EvaluationSweepInterval time.Duration `mapstructure:"evaluation_sweep_interval"`
	// EvaluationMaxAttempts bounds submission retries before an
	// EvaluationTask is marked failed. Defaults to 3.
	EvaluationMaxAttempts int `mapstructure:"evaluation_max_attempts"`
	// ReconcileInterval is how often the Deployment Tracker's
	// reconciliation loop runs. Defaults to 30s.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	// ReconcileConcurrency caps the number of in-flight GetStatus
	// calls per reconciliation sweep. Defaults to 16.
	ReconcileConcurrency int `mapstructure:"reconcile_concurrency"`
	// JobMaxFailures is the failure budget for plain (non-vLLM)
	// Deployments. Defaults to 3.
	JobMaxFailures int `mapstructure:"job_max_failures"`
	// TerminalIdleTimeout closes a TerminalSession after this much
	// inactivity. Defaults to 30 minutes.
	TerminalIdleTimeout time.Duration `mapstructure:"terminal_idle_timeout"`
	// ShutdownGracePeriod bounds how long the process waits for
	// in-flight reconciliations to finish on SIGINT/SIGTERM before
	// exiting. Defaults to 30s.
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// EvaluationDelay returns EvaluationDelayMinutes as a duration.
func (c *DeployerConfig) EvaluationDelay() time.Duration {
	return time.Duration(c.EvaluationDelayMinutes) * time.Minute
}

// LoadDeployerConfig reads DeployerConfig purely from the process
// environment.
func LoadDeployerConfig() (*DeployerConfig, error) {
	v := newViper("")
	v.SetDefault("evaluation_delay_minutes", 30)
	v.SetDefault("evaluation_sweep_interval", 30*time.Second)
	v.SetDefault("evaluation_max_attempts", 3)
	v.SetDefault("reconcile_interval", 30*time.Second)
	v.SetDefault("reconcile_concurrency", 16)
	v.SetDefault("job_max_failures", 3)
	v.SetDefault("terminal_idle_timeout", 30*time.Minute)
	v.SetDefault("shutdown_grace_period", 30*time.Second)
	v.SetDefault("server_port", 8080)
	for _, key := range []string{
		"evaluation_delay_minutes", "evaluation_sweep_interval",
		"evaluation_max_attempts", "reconcile_interval",
		"reconcile_concurrency", "job_max_failures",
		"terminal_idle_timeout", "shutdown_grace_period",
	} {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("evaluation_delay_minutes", "EVALUATION_DELAY_MINUTES")
	_ = v.BindEnv("job_max_failures", "JOB_MAX_FAILURES")
	_ = v.BindEnv("server_port", "SERVER_PORT")
	_ = v.BindEnv("server_host", "SERVER_HOST")

	cfg := &DeployerConfig{}
	if err := decode(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
