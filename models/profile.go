package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CloneProfile is the on-disk form of a reusable set of clone options.
type CloneProfile struct {
	SourceID      string       `yaml:"source_id"`
	DestinationID string       `yaml:"destination_id"`
	Options       CloneOptions `yaml:"options"`
}

// ParseCloneProfile decodes a YAML profile. Missing option keys keep their defaults.
func ParseCloneProfile(data []byte) (*CloneProfile, error) {
	profile := &CloneProfile{Options: DefaultCloneOptions()}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse clone profile: %w", err)
	}
	if err := profile.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clone profile: %w", err)
	}
	return profile, nil
}

func LoadCloneProfile(path string) (*CloneProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clone profile %s: %w", path, err)
	}
	return ParseCloneProfile(data)
}
