package format_2025

// BuildOptions is the manifest shape the builder parses: package
// identity, the execution command, the slot list, and optional launch-
// time configuration (runtime environment rules, cache validation,
// setup commands). Field names and JSON tags match the manifest schema
// consumed by doBuild in builder.go.
type BuildOptions struct {
	Package   PackageConfig   `json:"package"`
	Execution ExecutionConfig `json:"execution"`
	Slots     []Slot          `json:"slots"`

	Launcher        string                 `json:"launcher,omitempty"`
	CacheValidation *CacheValidationConfig `json:"cache_validation,omitempty"`
	SetupCommands   []interface{}          `json:"setup_commands,omitempty"`
	Runtime         *RuntimeConfig         `json:"runtime,omitempty"`
}

// PackageConfig is the manifest's package identity block.
type PackageConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// ExecutionConfig is the manifest's handover configuration: the command
// template, its fixed environment, and which slot (if any) is the
// "primary" payload referenced by tooling.
type ExecutionConfig struct {
	PrimarySlot int               `json:"primary_slot,omitempty"`
	Command     string            `json:"command"`
	Environment map[string]string `json:"environment,omitempty"`
}

// RuntimeConfig is the manifest's pass/unset/map/set environment program,
// carried through verbatim into Metadata.Runtime.
type RuntimeConfig struct {
	Env map[string]interface{} `json:"env,omitempty"`
}

// CacheValidationConfig names a sentinel file the payload can check at
// startup to confirm it is running from the expected workenv.
type CacheValidationConfig struct {
	CheckFile       string `json:"check_file"`
	ExpectedContent string `json:"expected_content,omitempty"`
}

// Slot is one manifest entry describing a single SlotInput: where its
// bytes come from, where they land in the workenv, and how they're
// treated (purpose, lifecycle, operation chain, permissions).
type Slot struct {
	Slot        *int   `json:"slot,omitempty"`
	ID          string `json:"id"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	Purpose     string `json:"purpose"`
	Lifecycle   string `json:"lifecycle"`
	Resolution  string `json:"resolution,omitempty"`
	Operations  string `json:"operations"`
	Permissions string `json:"permissions,omitempty"`
}
