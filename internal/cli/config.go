package cli

import (
	"fmt"

	"github.com/kbuckham/zonewatch/internal/config"
)

// loadConfig reads cfg from path, or falls back to config.Default() when
// path is empty — every other command needs this same resolution.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
