package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

var configFilePath = flag.String("config_file", "config.txtpb", "Path to the configuration file.")

// InitFlags initializes the flags from the config file specified by the -config_file flag.
// It should be called after defining all flags and before using them.
// Values in the config file override the command line; a missing config file leaves the flags untouched.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}
	if err := applyConfigFile(*configFilePath); errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file does not exist.", "path", *configFilePath, "error", err)
	} else if err != nil {
		slog.Error("Failed to apply config file.", "path", *configFilePath, "error", err)
	}
}

// applyConfigFile reads the .txtpb file at path and sets every flag it contains.
func applyConfigFile(path string) error {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	conf, err := parseConfig(configBytes)
	if err != nil {
		return err
	}
	if err := setConfigFlags(conf); err != nil {
		return fmt.Errorf("failed to set flags from config file: %w", err)
	}
	return nil
}
