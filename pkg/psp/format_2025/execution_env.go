// SPDX-License-Identifier: Apache-2.0
// Package format_2025 implements PSPF/2025 package format support
package format_2025

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

const defaultCacheSubdir = ".cache/flavor/workenv"

// sensitiveEnvKeys lists environment variable names redacted by
// logEnvironmentTrace before they're written to a log.
var sensitiveEnvKeys = map[string]bool{
	"SSH_AUTH_SOCK":         true,
	"AWS_SECRET_ACCESS_KEY": true,
	"GITHUB_TOKEN":          true,
	"HF_TOKEN":              true,
	"OPENAI_API_KEY":        true,
	"PASSWORD":              true,
}

// setFlavorCacheBeforeWorkenv points FLAVOR_CACHE at the host's cache
// directory so packaged tools can still reach cached data after the
// workenv environment variables below override HOME; callers must invoke
// this before applying those workenv overrides, not after.
func setFlavorCacheBeforeWorkenv(env []string, logger hclog.Logger) []string {
	if hasEnv(env, "FLAVOR_CACHE") {
		logger.Debug("FLAVOR_CACHE already set, skipping")
		return env
	}

	home := getenv(env, "HOME", "")
	if home == "" {
		logger.Warn("HOME not found in environment, skipping FLAVOR_CACHE setup")
		return env
	}

	cachePath := fmt.Sprintf("%s/%s", home, defaultCacheSubdir)
	logger.Debug("setting FLAVOR_CACHE to host cache", "path", cachePath)
	return append(env, fmt.Sprintf("FLAVOR_CACHE=%s", cachePath))
}

// getenv looks up key in a "KEY=VALUE" environment slice, returning
// defaultVal if the key is absent.
func getenv(env []string, key string, defaultVal string) string {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return strings.TrimPrefix(e, prefix)
		}
	}
	return defaultVal
}

// hasEnv reports whether key is present in a "KEY=VALUE" environment slice.
func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

// logEnvironmentTrace dumps env at trace level with sensitive values
// redacted; a no-op unless trace logging is enabled, since building the
// redacted view on every call would otherwise be wasted work.
func logEnvironmentTrace(env []string, logger hclog.Logger) {
	if !logger.IsTrace() {
		return
	}

	logger.Trace("environment variables being passed to subprocess:")
	for _, e := range env {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if sensitiveEnvKeys[key] {
			value = "***"
		}
		logger.Trace("  ->", "key", key, "value", value)
	}
}
