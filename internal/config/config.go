// Package config reads the server's environment-variable configuration
// into a single struct at startup. The surface is eight scalar values, so
// this stays a direct os.Getenv reader rather than pulling in viper — in
// keeping with the teacher's own internal/core/config.go, which is a plain
// struct plus os.ReadFile/os.Getenv with no configuration framework.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the process-wide configuration, the only process-global state
// besides the Index connection pool (see spec Design Notes, "Global state").
type Config struct {
	StorageRoot                     string
	HTTPHost                        string
	HTTPPort                        int
	HTTPBearerToken                 string
	HTTPAllowLocalhostUnauthenticated bool
	LLMEnabled                      bool
	LLMDefaultModel                 string
	ContactEnforcementEnabled       bool
}

const defaultHTTPPort = 8765

// Load reads the configuration from the environment, applying defaults
// where the specification defines one.
func Load() (Config, error) {
	cfg := Config{
		StorageRoot:     os.Getenv("STORAGE_ROOT"),
		HTTPHost:        getenvDefault("HTTP_HOST", "127.0.0.1"),
		HTTPBearerToken: os.Getenv("HTTP_BEARER_TOKEN"),
		LLMDefaultModel: os.Getenv("LLM_DEFAULT_MODEL"),
	}

	if cfg.StorageRoot == "" {
		return Config{}, fmt.Errorf("STORAGE_ROOT must be set")
	}

	port, err := getenvInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPPort = port

	cfg.HTTPAllowLocalhostUnauthenticated, err = getenvBool("HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMEnabled, err = getenvBool("LLM_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.ContactEnforcementEnabled, err = getenvBool("CONTACT_ENFORCEMENT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}

	if cfg.HTTPBearerToken == "" && !cfg.HTTPAllowLocalhostUnauthenticated {
		return Config{}, fmt.Errorf("either HTTP_BEARER_TOKEN or HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED=true must be set")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
