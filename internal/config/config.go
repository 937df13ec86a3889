// Package config loads the gantryfile, the optional YAML file configuring
// the CLI's data directory, Docker connection, registries and logging.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/gantryhq/gantry/pkg/runner/docker"
	"github.com/gantryhq/gantry/pkg/runner/docker/registryauth"
)

type Docker struct {
	APIVersion                string           `yaml:"api_version"`
	FallbackAPIVersion        string           `yaml:"fallback_api_version"`
	NegotiationTimeoutSeconds int              `yaml:"negotiation_timeout_seconds"`
	Network                   string           `yaml:"network"`
	Registries                []RegistryConfig `yaml:"registries"`
}

// RegistryConfig is a registry entry in the gantryfile.
type RegistryConfig struct {
	Name     string       `yaml:"name"`
	Registry string       `yaml:"registry"`
	Auth     RegistryAuth `yaml:"auth"`
}

// RegistryAuth holds authentication configuration for a registry.
type RegistryAuth struct {
	Type     string `yaml:"type"` // basic | token | ecr
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token"`
	Region   string `yaml:"region"`
}

type Deploy struct {
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	DataDir   string `yaml:"data_dir"`
	Namespace string `yaml:"namespace"`
	Docker    Docker `yaml:"docker"`
	Deploy    Deploy `yaml:"deploy"`
	Log       Log    `yaml:"log"`
}

func Default() *Config {
	return &Config{
		DataDir:   defaultDataDir(),
		Namespace: "default",
		Docker:    Docker{FallbackAPIVersion: "1.43", NegotiationTimeoutSeconds: 3, Network: "gantry"},
		Deploy:    Deploy{StopTimeout: 10 * time.Second},
		Log:       Log{Level: "info", Format: "text"},
	}
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	return filepath.Join(home, ".gantry")
}

// RunnerConfig translates the gantryfile's docker section into the runner's
// configuration, credentials included.
func (c *Config) RunnerConfig() *docker.Config {
	cfg := docker.DefaultConfig()
	cfg.APIVersion = c.Docker.APIVersion
	if c.Docker.FallbackAPIVersion != "" {
		cfg.FallbackAPIVersion = c.Docker.FallbackAPIVersion
	}
	if c.Docker.NegotiationTimeoutSeconds > 0 {
		cfg.NegotiationTimeoutSeconds = c.Docker.NegotiationTimeoutSeconds
	}
	if c.Docker.Network != "" {
		cfg.NetworkName = c.Docker.Network
	}
	cfg.AuthProviders = c.AuthProviders()
	return cfg
}

// AuthProviders builds registry credential providers from the configured
// registries. Passwords and tokens are env-expanded so the gantryfile can
// reference ${VAR} instead of embedding secrets.
func (c *Config) AuthProviders() []registryauth.Provider {
	var providers []registryauth.Provider
	for _, reg := range c.Docker.Registries {
		switch reg.Auth.Type {
		case "ecr":
			providers = append(providers, registryauth.NewECRProvider(registryauth.ECRConfig{
				Registry: reg.Registry,
				Region:   reg.Auth.Region,
			}))
		default:
			providers = append(providers, registryauth.NewBasicProvider(registryauth.BasicConfig{
				Registry: reg.Registry,
				Username: os.ExpandEnv(reg.Auth.Username),
				Password: os.ExpandEnv(reg.Auth.Password),
				Token:    os.ExpandEnv(reg.Auth.Token),
			}))
		}
	}
	return providers
}

// StorePath is where the badger store lives under the data directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "state")
}

// Load reads the gantryfile at path, or searches the working directory and
// /etc/gantry/ when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gantryfile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gantry/")
	}
	cfg := Default()
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
