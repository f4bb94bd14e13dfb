package format_2025

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// windowsCriticalEnvVars must always reach a child process on Windows —
// without them many programs (language runtimes in particular) fail to
// initialize even when every other variable has been stripped.
var windowsCriticalEnvVars = []string{"SYSTEMROOT", "WINDIR", "TEMP", "TMP", "PATHEXT", "COMSPEC"}

// processRuntimeEnv applies a manifest's runtime.env program (pass/unset/
// map/set) to the parent environment and returns the resulting "KEY=VALUE"
// slice for the child process. Operations apply in a fixed order: compute
// what "pass" preserves first, then unset, then map, then set, so a
// later stage can see the result of an earlier one.
func processRuntimeEnv(env []string, runtimeEnv map[string]interface{}, logger hclog.Logger) []string {
	envMap := splitEnvList(env)

	if runtime.GOOS == "windows" {
		ensureWindowsCriticalVarsPassed(runtimeEnv, logger)
	}

	preserve := buildPreserveSet(envMap, runtimeEnv, logger)
	applyUnset(envMap, runtimeEnv, preserve, logger)
	applyMap(envMap, runtimeEnv, logger)
	applySet(envMap, runtimeEnv, logger)
	verifyPassPatterns(envMap, runtimeEnv, logger)

	return envMapToList(envMap)
}

func splitEnvList(env []string) map[string]string {
	envMap := make(map[string]string, len(env))
	for _, e := range env {
		if key, value, ok := strings.Cut(e, "="); ok {
			envMap[key] = value
		}
	}
	return envMap
}

func envMapToList(envMap map[string]string) []string {
	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// ensureWindowsCriticalVarsPassed adds any of windowsCriticalEnvVars
// missing from runtimeEnv's "pass" list, creating the list if absent.
func ensureWindowsCriticalVarsPassed(runtimeEnv map[string]interface{}, logger hclog.Logger) {
	passList, ok := runtimeEnv["pass"].([]interface{})
	if !ok {
		passListInterface := make([]interface{}, len(windowsCriticalEnvVars))
		for i, v := range windowsCriticalEnvVars {
			passListInterface[i] = v
		}
		logger.Debug("creating pass list with windows critical variables")
		runtimeEnv["pass"] = passListInterface
		return
	}

	existing := make(map[string]bool, len(passList))
	for _, pattern := range passList {
		if s, ok := pattern.(string); ok {
			existing[s] = true
		}
	}
	for _, v := range windowsCriticalEnvVars {
		if !existing[v] {
			logger.Debug("auto-adding windows critical variable", "var", v)
			passList = append(passList, v)
		}
	}
	runtimeEnv["pass"] = passList
}

// stringPatterns extracts the string patterns from one of runtimeEnv's
// list-valued keys ("pass" or "unset"), ignoring anything not a string.
func stringPatterns(runtimeEnv map[string]interface{}, key string) []string {
	list, ok := runtimeEnv[key].([]interface{})
	if !ok {
		return nil
	}
	patterns := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			patterns = append(patterns, s)
		}
	}
	return patterns
}

func isGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// buildPreserveSet resolves runtimeEnv's "pass" patterns against envMap's
// current keys, expanding globs, so later unset operations know what must
// survive.
func buildPreserveSet(envMap map[string]string, runtimeEnv map[string]interface{}, logger hclog.Logger) map[string]bool {
	preserve := make(map[string]bool)
	patterns := stringPatterns(runtimeEnv, "pass")
	if len(patterns) == 0 {
		return preserve
	}

	logger.Debug("building preserve list from pass patterns", "count", len(patterns))
	for _, pattern := range patterns {
		if isGlobPattern(pattern) {
			for key := range envMap {
				if matched, _ := filepath.Match(pattern, key); matched {
					preserve[key] = true
				}
			}
			continue
		}
		if _, exists := envMap[pattern]; exists {
			preserve[pattern] = true
		}
	}
	return preserve
}

// applyUnset removes variables named by runtimeEnv's "unset" patterns,
// never touching anything in preserve. The pattern "*" means "everything
// not preserved".
func applyUnset(envMap map[string]string, runtimeEnv map[string]interface{}, preserve map[string]bool, logger hclog.Logger) {
	patterns := stringPatterns(runtimeEnv, "unset")
	if len(patterns) == 0 {
		return
	}
	logger.Debug("processing unset operations", "count", len(patterns))

	for _, pattern := range patterns {
		switch {
		case pattern == "*":
			logger.Debug("whitelist mode: removing all variables except preserved")
			removed := 0
			for key := range envMap {
				if !preserve[key] {
					delete(envMap, key)
					removed++
				}
			}
			logger.Debug("removed variables", "count", removed, "preserved", len(preserve))
		case isGlobPattern(pattern):
			for key := range envMap {
				if !preserve[key] {
					if matched, _ := filepath.Match(pattern, key); matched {
						delete(envMap, key)
					}
				}
			}
		default:
			if !preserve[pattern] {
				delete(envMap, pattern)
			}
		}
	}
}

// applyMap renames variables per runtimeEnv's "map" table (from -> to).
func applyMap(envMap map[string]string, runtimeEnv map[string]interface{}, logger hclog.Logger) {
	mapOps, ok := runtimeEnv["map"].(map[string]interface{})
	if !ok {
		return
	}
	logger.Debug("processing map operations", "count", len(mapOps))

	for from, to := range mapOps {
		toStr, ok := to.(string)
		if !ok {
			continue
		}
		value, exists := envMap[from]
		if !exists {
			continue
		}
		envMap[toStr] = value
		if from != toStr {
			delete(envMap, from)
		}
	}
}

// applySet assigns literal values from runtimeEnv's "set" table.
func applySet(envMap map[string]string, runtimeEnv map[string]interface{}, logger hclog.Logger) {
	setOps, ok := runtimeEnv["set"].(map[string]interface{})
	if !ok {
		return
	}
	logger.Debug("processing set operations", "count", len(setOps))

	for key, value := range setOps {
		if valueStr, ok := value.(string); ok {
			envMap[key] = valueStr
		}
	}
}

// verifyPassPatterns warns when a required "pass" pattern matches nothing
// in the final environment — a likely sign the manifest expects a variable
// the parent process never had.
func verifyPassPatterns(envMap map[string]string, runtimeEnv map[string]interface{}, logger hclog.Logger) {
	patterns := stringPatterns(runtimeEnv, "pass")
	if len(patterns) == 0 {
		return
	}
	logger.Debug("verifying pass patterns", "count", len(patterns))

	for _, pattern := range patterns {
		if isGlobPattern(pattern) {
			found := false
			for key := range envMap {
				if matched, _ := filepath.Match(pattern, key); matched {
					found = true
					break
				}
			}
			if !found {
				logger.Warn("no environment variables match required pattern", "pattern", pattern)
			}
			continue
		}
		if _, exists := envMap[pattern]; !exists {
			logger.Warn("required environment variable not found", "key", pattern)
		}
	}
}
