// Copyright 2025 Certen Protocol
//
// Key Manifest Loader
// Loads the YAML manifest describing which note arities a deployment's
// Groth16 verifying keys cover, with ${VAR_NAME} environment variable
// substitution — the same config-loading idiom this service uses for any
// file-based configuration, applied here to the proof oracle's key set
// instead of anchor/consensus settings.

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ArityEntry is one (inputs, outputs) shape a verifying key family covers.
type ArityEntry struct {
	Inputs  int `yaml:"inputs"`
	Outputs int `yaml:"outputs"`
}

// KeyManifest lists the note arities a deployment's Mint/Freeze/Transfer
// verifying keys are provisioned for. It does not carry the key material
// itself — loading real Groth16 verifying keys from a trusted-setup
// ceremony is out of scope (spec.md §1) — only the shape of the key set
// the composition root must build before the validator can verify proofs.
type KeyManifest struct {
	Curve  string       `yaml:"curve"`
	Mint   bool         `yaml:"mint"`
	Freeze []ArityEntry `yaml:"freeze"`
	Xfr    []ArityEntry `yaml:"xfr"`
}

// LoadKeyManifest reads and parses a key manifest YAML file, substituting
// ${VAR_NAME} and ${VAR_NAME:-default} references against the process
// environment before parsing.
func LoadKeyManifest(path string) (*KeyManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key manifest %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var manifest KeyManifest
	if err := yaml.Unmarshal([]byte(expanded), &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse key manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
