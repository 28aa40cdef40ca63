package config

import "time"

// VLLMConfig is the configuration for the benchmark-vllm binary: the
// Placement Engine plus the vLLM-flavored admission endpoint.
type VLLMConfig struct {
	Shared `mapstructure:",squash"`

	// ReconcileInterval is how often the Deployment Tracker's
	// reconciliation loop runs for VLLMDeployments. Defaults to 30s.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	// ReconcileConcurrency caps in-flight GetStatus calls per sweep.
	ReconcileConcurrency int `mapstructure:"reconcile_concurrency"`
	// VLLMMaxFailures is the (stricter) failure budget for
	// VLLMDeployments. Defaults to 2.
	VLLMMaxFailures int `mapstructure:"vllm_max_failures"`
	// EvictionTimeout bounds how long Admit's EVICT_AND_ADMIT path
	// waits for victims to reach `deleted` before applying the
	// candidate.
	EvictionTimeout time.Duration `mapstructure:"eviction_timeout"`
}

// LoadVLLMConfig reads VLLMConfig purely from the process environment.
func LoadVLLMConfig() (*VLLMConfig, error) {
	v := newViper("")
	v.SetDefault("reconcile_interval", 30*time.Second)
	v.SetDefault("reconcile_concurrency", 16)
	v.SetDefault("vllm_max_failures", 2)
	v.SetDefault("eviction_timeout", 60*time.Second)
	v.SetDefault("server_port", 8081)
	_ = v.BindEnv("vllm_max_failures", "VLLM_MAX_FAILURES")
	_ = v.BindEnv("server_port", "SERVER_PORT")
	_ = v.BindEnv("server_host", "SERVER_HOST")

	cfg := &VLLMConfig{}
	if err := decode(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
