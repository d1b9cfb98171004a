package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the client configuration. Values come from an optional YAML
// file overlaid with environment variables, matching the original
// deployment's env surface.
type Config struct {
	API struct {
		URL string `yaml:"url"` // REST and WebSocket base URL
	} `yaml:"api"`

	Identity struct {
		ClientAddress string `yaml:"client_address"` // wallet used in the client role
		WorkerAddress string `yaml:"worker_address"` // wallet used in the worker role
	} `yaml:"identity"`

	Store struct {
		Path string `yaml:"path"` // local state database path
	} `yaml:"store"`

	Dashboard struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"dashboard"`

	Maps struct {
		APIKey string `yaml:"api_key"` // passed through to the address-autocomplete collaborator
	} `yaml:"maps"`
}

type envOverrides struct {
	APIURL        string `envconfig:"API_URL"`
	ClientAddress string `envconfig:"CLIENT_ADDR"`
	WorkerAddress string `envconfig:"WORKER_ADDR"`
	MapsAPIKey    string `envconfig:"GOOGLE_MAPS_API_KEY"`
}

// Load reads the configuration. A missing file is not an error; defaults
// plus environment variables are enough to run.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// env-only setup
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if env.APIURL != "" {
		cfg.API.URL = env.APIURL
	}
	if env.ClientAddress != "" {
		cfg.Identity.ClientAddress = env.ClientAddress
	}
	if env.WorkerAddress != "" {
		cfg.Identity.WorkerAddress = env.WorkerAddress
	}
	if env.MapsAPIKey != "" {
		cfg.Maps.APIKey = env.MapsAPIKey
	}

	if cfg.API.URL == "" {
		cfg.API.URL = "http://localhost:8000"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./data/state.db"
	}
	if cfg.Dashboard.Address == "" {
		cfg.Dashboard.Address = ":8090"
	}

	return &cfg, nil
}
