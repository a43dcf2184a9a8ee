package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file.
// If path is empty, it loads ".env" from the current directory.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadConfig loads configuration from an optional .env file, the
// environment, and the backends file named by BACKENDS_FILE. Variables
// already set in the environment win over the .env file.
func LoadConfig(envPath string) (AppConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return AppConfig{}, err
	}

	envCfg, err := LoadFromEnv()
	if err != nil {
		return AppConfig{}, err
	}

	cfg := envCfg.ToAppConfig()
	if envCfg.BackendsFile == "" {
		return cfg, nil
	}

	file, err := LoadBackendsFile(envCfg.BackendsFile)
	if err != nil {
		return AppConfig{}, err
	}
	return cfg.Apply(file.Options(cfg, envCfg.Embedding.Strategy)...), nil
}
