package core

import (
	"fmt"
	"strings"
)

type RegistryConfig struct {
	// DiscoveryPaths overrides the candidate base paths probed during
	// registry discovery. Empty means the built-in probe order.
	DiscoveryPaths []string `koanf:"discovery_paths" mapstructure:"discovery_paths"`
	// Isolation skips cross-registry ownership checks during sync. Only
	// valid while a single registry is active for the context.
	Isolation bool `koanf:"isolation" mapstructure:"isolation"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Registry    RegistryConfig `koanf:"registry" mapstructure:"registry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "endpoints",
		Registry:    RegistryConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	return nil
}
