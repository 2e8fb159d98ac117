package harness

import (
	"github.com/spf13/viper"
)

// EnvConfig carries sandbox knobs read from the environment.
type EnvConfig struct {
	HomeDir       string `mapstructure:"home"`
	RPCPort       int    `mapstructure:"rpc_port"`
	BinaryVersion string `mapstructure:"version"`
	AlwaysReset   bool   `mapstructure:"always_reset"`
}

// envBindings maps config keys to the environment variables that provide
// their values.
var envBindings = map[string][]string{
	"home":         {"NEAR_SANDBOX_HOME"},
	"rpc_port":     {"NEAR_SANDBOX_RPC_PORT"},
	"version":      {"NEAR_SANDBOX_VERSION"},
	"always_reset": {"NEAR_SANDBOX_ALWAYS_RESET"},
}

// LoadConfigFromEnv reads the sandbox configuration from environment
// variables. Unset variables leave their zero values, which downstream
// components treat as "use the default".
func LoadConfigFromEnv() (*EnvConfig, error) {
	v := viper.New()

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	cfg := &EnvConfig{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// ProviderConfig converts the environment configuration into a provider
// configuration.
func (c *EnvConfig) ProviderConfig() ProviderConfig {
	return ProviderConfig{
		HomeDir:       c.HomeDir,
		RPCPort:       c.RPCPort,
		BinaryVersion: c.BinaryVersion,
	}
}
