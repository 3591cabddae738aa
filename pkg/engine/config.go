package engine

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's construction-time configuration.
type Config struct {
	Project  string `yaml:"project"`
	Database string `yaml:"database"`
	Region   string `yaml:"region"`
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{Project: "default-project", Database: "(default)", Region: "nam5"}
}

// LoadConfig reads YAML configuration from path, filling in documented
// defaults for any field the file omits. A missing file is not an error:
// it returns DefaultConfig().
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Project == "" {
		cfg.Project = "default-project"
	}
	if cfg.Database == "" {
		cfg.Database = "(default)"
	}
	if cfg.Region == "" {
		cfg.Region = "nam5"
	}
	return cfg, nil
}
