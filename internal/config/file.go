package config

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFilePath is the default location of the optional bioprotocol configuration file.
const DefaultFilePath = ".bioprotocol.yaml"

// FilePathEnvVar names the environment variable that overrides DefaultFilePath.
const FilePathEnvVar = "BIOPROTOCOL_CONFIG_PATH"

// File is the optional YAML configuration file.
//
// Environment variables always take precedence over values read from the file; the file only
// supplies defaults for the remote endpoints and the queue, which are awkward to pass around as
// environment variables on developer machines.
type File struct {
	Publisher struct {
		GatewayURL  string `yaml:"gateway_url"`
		ContentType string `yaml:"content_type"`
	} `yaml:"publisher"`

	Partner struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"partner"`

	Queue struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		GroupID string   `yaml:"group_id"`
	} `yaml:"queue"`
}

// LoadFile reads the YAML configuration file at path.
//
// A missing, unreadable or malformed file is not an error: an empty File is returned and a warning
// is logged, so a process can always start from environment variables alone.
func LoadFile(path string) *File {
	cfg := &File{}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, using environment only", slog.String("path", path))

			return cfg
		}

		slog.Warn("Failed to read config file, using environment only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg
	}

	if len(data) == 0 {
		return cfg
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, using environment only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &File{}
	}

	return cfg
}

// LoadFileFromEnv loads the file named by BIOPROTOCOL_CONFIG_PATH, or DefaultFilePath.
func LoadFileFromEnv() *File {
	return LoadFile(GetEnvStr(FilePathEnvVar, DefaultFilePath))
}
