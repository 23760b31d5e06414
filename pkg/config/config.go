// Copyright 2025 Certen Protocol
//
// Config
// Environment-variable configuration for the CAPE validator service.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the CAPE validator service.
type Config struct {
	// Ethereum Configuration
	EthereumURL   string
	EthChainID    int64
	ContractAddr  string
	EthPrivateKey string
	GasLimit      uint64

	// Server Configuration
	ListenAddr  string
	MetricsAddr string

	// Service Configuration
	ValidatorID string
	LogLevel    string
	NetworkName string

	// KeyManifestPath points to the YAML manifest describing which
	// (inputs, outputs) arities the deployment's Freeze/Transfer verifying
	// keys cover (see LoadKeyManifest). Optional: an empty VerifyingKeySet
	// is a valid, if unusable, starting state.
	KeyManifestPath string
}

// Load reads configuration from environment variables. Listen/metrics
// addresses, chain ID, gas limit and service identifiers have defaults;
// ETHEREUM_URL, CAPE_CONTRACT_ADDRESS and key material (EthPrivateKey) do
// not, and are left empty when unset.
func Load() (*Config, error) {
	cfg := &Config{
		EthereumURL:   getEnv("ETHEREUM_URL", ""),
		EthChainID:    getEnvInt64("ETH_CHAIN_ID", 11155111),
		ContractAddr:  getEnv("CAPE_CONTRACT_ADDRESS", ""),
		EthPrivateKey: getEnv("ETH_PRIVATE_KEY", ""),
		GasLimit:      getEnvUint64("CAPE_GAS_LIMIT", 3_000_000),

		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),

		ValidatorID: getEnv("VALIDATOR_ID", "validator-default"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		NetworkName: getEnv("NETWORK_NAME", "devnet"),

		KeyManifestPath: getEnv("CAPE_KEY_MANIFEST_PATH", ""),
	}

	return cfg, nil
}

// Validate checks that the configuration required to run against a real
// Ethereum deployment is present. Call this before starting the service;
// ValidateForDevelopment is the relaxed counterpart for local runs against
// a devnet where ETH_PRIVATE_KEY/CAPE_CONTRACT_ADDRESS may be unset.
func (c *Config) Validate() error {
	var errs []string

	if c.EthereumURL == "" {
		errs = append(errs, "ETHEREUM_URL is required but not set")
	}
	if c.EthPrivateKey == "" {
		errs = append(errs, "ETH_PRIVATE_KEY is required but not set")
	}
	if c.ContractAddr == "" {
		errs = append(errs, "CAPE_CONTRACT_ADDRESS is required but not set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for running
// against a local devnet without a funded signing key or deployed contract.
func (c *Config) ValidateForDevelopment() error {
	if c.EthereumURL == "" {
		return fmt.Errorf("development configuration validation failed:\n  - ETHEREUM_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
