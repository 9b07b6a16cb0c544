package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/dimplan/internal/plan"
)

// ReadPlan reads a YAML plan file
func ReadPlan(path string) (plan.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return plan.Configuration{}, fmt.Errorf("failed to read plan file: %w", err)
	}

	var cfg plan.Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return plan.Configuration{}, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return cfg, nil
}

// WritePlan writes cfg to path as YAML
func WritePlan(path string, cfg plan.Configuration) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}
