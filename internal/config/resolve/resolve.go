// Package resolve implements ExLLM's option resolution tiers (§6):
// explicit call-site option > static config source > environment
// variable > built-in default.
package resolve

import (
	"context"
	"os"
)

// Source is a static configuration backend consulted as the second
// tier, ahead of environment variables. FileSource (this package) and
// a plain in-memory map both satisfy it.
type Source interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)
}

// SecretProvider is consulted ahead of Source, between the explicit
// option and the static config tiers, for secrets that must not live
// in a config file at all. Matches internal/secret/vault.Provider's
// signature directly so that provider needs no adapter. A nil
// SecretProvider is skipped.
type SecretProvider interface {
	Get(ctx context.Context, path string) (string, error)
}

// MapSource is the simplest Source: a fixed, in-memory map. Useful for
// tests and for callers who build their config programmatically
// instead of from a YAML file.
type MapSource map[string]string

// Get implements Source.
func (m MapSource) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// String resolves key through every tier in order, returning the
// first hit: explicit (non-empty explicit pointer), secret provider,
// static source, environment variable envVar, then builtinDefault.
// secretPath is the Vault-style "path/to/secret#key" consulted when
// secrets is non-nil; pass "" to skip the secret tier for this key
// even when a provider is configured.
func String(ctx context.Context, explicit *string, secrets SecretProvider, secretPath string, source Source, key, envVar, builtinDefault string) string {
	if explicit != nil && *explicit != "" {
		return *explicit
	}
	if secrets != nil && secretPath != "" {
		if v, err := secrets.Get(ctx, secretPath); err == nil && v != "" {
			return v
		}
	}
	if source != nil {
		if v, ok := source.Get(key); ok {
			return v
		}
	}
	if envVar != "" {
		if v, ok := os.LookupEnv(envVar); ok {
			return v
		}
	}
	return builtinDefault
}

// Bool is String's boolean sibling, consulting only the explicit,
// static-source, and environment tiers — booleans (feature toggles)
// are never secrets.
func Bool(explicit *bool, source Source, key, envVar string, builtinDefault bool) bool {
	if explicit != nil {
		return *explicit
	}
	if source != nil {
		if v, ok := source.Get(key); ok {
			return parseBool(v, builtinDefault)
		}
	}
	if envVar != "" {
		if v, ok := os.LookupEnv(envVar); ok {
			return parseBool(v, builtinDefault)
		}
	}
	return builtinDefault
}

func parseBool(v string, fallback bool) bool {
	switch v {
	case "1", "t", "true", "yes", "on", "T", "True", "TRUE":
		return true
	case "0", "f", "false", "no", "off", "F", "False", "FALSE":
		return false
	default:
		return fallback
	}
}
