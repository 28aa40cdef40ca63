package config

import "time"

// BridgeConfig is the configuration for the registry-bridge binary:
// the Registry-to-Source Bridge poller.
type BridgeConfig struct {
	Shared `mapstructure:",squash"`

	// PollingIntervalSeconds is how often the bridge enumerates model
	// versions from the registry. Defaults to 60.
	PollingIntervalSeconds int `mapstructure:"polling_interval"`
	// TemplateDir is the path within the versioned source (not a
	// local filesystem path) where the application manifest
	// template(s) live. Defaults to "template".
	TemplateDir string `mapstructure:"template_dir"`
	// ApplicationsDir is the path within the versioned source where
	// rendered application manifests are committed, one file per
	// run_id.
	ApplicationsDir string `mapstructure:"applications_dir"`
	// RegistryURL is the base URL of the upstream model registry
	// (MLflow-shaped; its internals live behind that API).
	RegistryURL string `mapstructure:"registry_url"`
	// RegistryToken authenticates to the registry API. Distinct from
	// SourceToken: the registry and the versioned source are separate
	// external collaborators.
	RegistryToken string `mapstructure:"registry_token"`
	// SourceOwner/SourceRepo/SourceRef name the versioned source
	// location the bridge mirrors rendered applications into.
	SourceOwner string `mapstructure:"source_owner"`
	SourceRepo  string `mapstructure:"source_repo"`
	SourceRef   string `mapstructure:"source_ref"`
	// CredentialsRef resolves the bridge's write credentials through
	// the same sourceclient.Credentials seam Projects use.
	CredentialsRef string `mapstructure:"credentials_ref"`
}

// PollingInterval returns PollingIntervalSeconds as a duration.
func (c *BridgeConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSeconds) * time.Second
}

// LoadBridgeConfig reads BridgeConfig purely from the process
// environment.
func LoadBridgeConfig() (*BridgeConfig, error) {
	v := newViper("")
	v.SetDefault("polling_interval", 60)
	v.SetDefault("template_dir", "template")
	v.SetDefault("applications_dir", "applications")
	v.SetDefault("server_port", 8082)
	_ = v.BindEnv("polling_interval", "POLLING_INTERVAL")
	_ = v.BindEnv("server_port", "SERVER_PORT")
	_ = v.BindEnv("server_host", "SERVER_HOST")
	_ = v.BindEnv("source_owner", "SOURCE_OWNER")
	_ = v.BindEnv("source_repo", "SOURCE_REPO")
	_ = v.BindEnv("source_ref", "SOURCE_REF")
	_ = v.BindEnv("credentials_ref", "CREDENTIALS_REF")
	_ = v.BindEnv("registry_url", "REGISTRY_URL")
	_ = v.BindEnv("registry_token", "REGISTRY_TOKEN")

	cfg := &BridgeConfig{}
	if err := decode(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
