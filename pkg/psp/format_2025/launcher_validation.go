package format_2025

import (
	"os"
	"strconv"
	"strings"
)

// Exit codes the launcher uses for os.Exit, distinguishing failure classes
// for scripts that key off the process exit status.
const (
	ExitPanic           = 101
	ExitPSPFError       = 102
	ExitExtractionError = 103
	ExitExecutionError  = 104
	ExitInvalidArgs     = 105
	ExitIOError         = 106
)

// ValidationLevel controls how strictly the launcher reacts to integrity
// problems (checksum mismatches, missing signatures) found during
// extraction.
type ValidationLevel int

const (
	ValidationStrict   ValidationLevel = iota // fail on any integrity issue
	ValidationStandard                        // warn on minor issues, fail on major ones
	ValidationRelaxed                         // skip signature checks, warn on checksum mismatches
	ValidationMinimal                         // only the most critical checks are fatal
	ValidationNone                            // skip all validation (testing only)
)

// validationLevelNames maps the FLAVOR_VALIDATION string values (and
// DefaultValidationLevel) to their ValidationLevel.
var validationLevelNames = map[string]ValidationLevel{
	"strict":   ValidationStrict,
	"standard": ValidationStandard,
	"relaxed":  ValidationRelaxed,
	"minimal":  ValidationMinimal,
	"none":     ValidationNone,
}

// getValidationLevel reads FLAVOR_VALIDATION from the environment,
// falling back to DefaultValidationLevel, and ValidationStandard if even
// that doesn't name a known level.
func getValidationLevel() ValidationLevel {
	if val := os.Getenv("FLAVOR_VALIDATION"); val != "" {
		if level, ok := validationLevelNames[strings.ToLower(val)]; ok {
			return level
		}
	}
	if level, ok := validationLevelNames[strings.ToLower(DefaultValidationLevel)]; ok {
		return level
	}
	return ValidationStandard
}

// isEnvTrue reports whether an environment variable holds a recognizable
// true value: "on", "yes", or anything strconv.ParseBool accepts.
func isEnvTrue(key string) bool {
	val := os.Getenv(key)
	if val == "" {
		return false
	}

	switch strings.ToLower(val) {
	case "on", "yes":
		return true
	}

	result, err := strconv.ParseBool(val)
	return err == nil && result
}
