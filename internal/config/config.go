// Package config loads process configuration from the environment,
// one viper/mapstructure-driven Config struct per binary.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Shared holds the configuration common to every binary in this
// module (benchmark-deployer, benchmark-vllm, registry-bridge): the
// document store connection, the cluster client, the source client and
// logging. Each binary's own Config embeds Shared and adds its own
// fields.
type Shared struct {
	// MongoURL keeps `MONGO_URL` as the connection-string environment
	// variable name; it is used as the DSN for the document store's
	// backing Postgres pool (see internal/dbstore).
	MongoURL string `mapstructure:"mongo_url"`
	// KubeconfigPath is the path to the kubeconfig file used to build
	// the Cluster Gateway's clients when the process is not running
	// in-cluster (in-cluster config is always tried first). Empty
	// means client-go's default kubeconfig loading rules.
	KubeconfigPath string `mapstructure:"kubeconfig"`
	// SourceToken is the opaque credential used to authenticate to
	// the external versioned source when a Project does not carry
	// its own per-project credentials reference.
	SourceToken string `mapstructure:"source_token"`
	// SourceAPIBaseURL is the base URL of the GitHub-shaped contents
	// API the Source Poller and Registry-to-Source Bridge read from
	// and write into. Defaults to GitHub's own API.
	SourceAPIBaseURL string `mapstructure:"source_api_base_url"`
	// DefaultNamespace is the Kubernetes namespace used when a
	// request does not specify one. Defaults to "default".
	DefaultNamespace string `mapstructure:"default_namespace"`
	// LogTailLines is the default number of log lines returned when
	// a client does not specify a tail count. Defaults to 100.
	LogTailLines int `mapstructure:"log_tail_lines"`
	// DeploymentTimeoutSeconds bounds how long a submitted workload
	// may stay pending before the reconciler fails it as stuck.
	// Defaults to 600.
	DeploymentTimeoutSeconds int `mapstructure:"deployment_timeout"`
	// Environment selects log formatting: "development" for a human
	// readable console encoder, anything else for JSON.
	Environment string `mapstructure:"environment"`
	// LogLevel is any level zap understands (debug, info, warn,
	// error, dpanic, panic, fatal). Defaults to "info".
	LogLevel string `mapstructure:"log_level"`
	// ServerHost is the host the HTTP server binds to.
	ServerHost string `mapstructure:"server_host"`
	// ServerPort is the port the HTTP server binds to.
	ServerPort int `mapstructure:"server_port"`
}

// DeploymentTimeout returns DeploymentTimeoutSeconds as a duration.
func (s Shared) DeploymentTimeout() time.Duration {
	return time.Duration(s.DeploymentTimeoutSeconds) * time.Second
}

// applySharedDefaults sets the shared defaults before the environment
// is read, so unset variables fall back predictably.
func applySharedDefaults(v *viper.Viper) {
	v.SetDefault("default_namespace", "default")
	v.SetDefault("log_tail_lines", 100)
	v.SetDefault("deployment_timeout", 600)
	v.SetDefault("environment", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("source_api_base_url", "https://api.github.com")
}

// newViper builds a viper instance that reads configuration purely
// from the process environment: each mapstructure key is upper-cased
// and read directly as an env var (e.g. `mongo_url` -> `MONGO_URL`).
func newViper(envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applySharedDefaults(v)
	for _, key := range []string{
		"mongo_url", "kubeconfig", "source_token", "source_api_base_url", "default_namespace",
		"log_tail_lines", "deployment_timeout", "environment", "log_level",
		"server_host", "server_port",
	} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
	return v
}

func decode(v *viper.Viper, out any) error {
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
