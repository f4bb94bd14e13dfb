package format_2025

// Metadata is the canonical JSON document stored (gzipped) at
// index.MetadataOffset. Field order here is the key order emitted by the
// builder — part of the format's canonical-JSON contract, not just Go
// struct convention, so it is not reordered for cosmetic reasons.
type Metadata struct {
	Format          string               `json:"format"`
	FormatVersion   string               `json:"format_version"`
	Package         PackageInfo          `json:"package"`
	CacheValidation *CacheValidationInfo `json:"cache_validation,omitempty"`
	SetupCommands   []interface{}        `json:"setup_commands,omitempty"`
	Slots           []SlotMetadata       `json:"slots"`
	Execution       *ExecutionInfo       `json:"execution,omitempty"`
	Runtime         *RuntimeInfo         `json:"runtime,omitempty"`
	Verification    *VerificationInfo    `json:"verification,omitempty"`
	Build           *BuildInfo           `json:"build,omitempty"`
	Launcher        *LauncherInfo        `json:"launcher,omitempty"`
	Compatibility   *CompatibilityInfo   `json:"compatibility,omitempty"`
	Workenv         *WorkenvInfo         `json:"workenv,omitempty"`
}

// PackageInfo identifies the package independent of any one slot.
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// CacheValidationInfo names an optional sentinel file a payload can check
// to confirm the workenv it's running from is the one it expects.
type CacheValidationInfo struct {
	CheckFile       string `json:"check_file"`
	ExpectedContent string `json:"expected_content,omitempty"`
}

// ExecutionInfo describes the command the launcher hands off to once the
// workenv is ready.
type ExecutionInfo struct {
	PrimarySlot int               `json:"primary_slot"`
	Command     string            `json:"command"`
	Environment map[string]string `json:"environment"`
}

// RuntimeInfo carries the pass/unset/map/set environment program
// (runtime.go's processRuntimeEnv) as a loosely-typed map so the JSON
// schema can evolve without a Go type for every shape of value.
type RuntimeInfo struct {
	Env map[string]interface{} `json:"env,omitempty"`
}

// WorkenvInfo lists directories the launcher must create (with modes)
// before extraction, plus any workenv-scoped environment defaults.
type WorkenvInfo struct {
	Directories []DirectorySpec   `json:"directories,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

type DirectorySpec struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// VerificationInfo records what level of integrity verification the
// package expects of a reader, independent of the launcher's own
// FLAVOR_VALIDATION override.
type VerificationInfo struct {
	IntegritySeal       IntegritySealInfo    `json:"integrity_seal"`
	Signed              bool                 `json:"signed"`
	RequireVerification bool                 `json:"require_verification"`
	TrustSignatures     *TrustSignaturesInfo `json:"trust_signatures,omitempty"`
}

// IntegritySealInfo names the signing algorithm the index's
// integrity_signature field was produced with — "ed25519" throughout this
// implementation (see crypto.go).
type IntegritySealInfo struct {
	Required  bool   `json:"required"`
	Algorithm string `json:"algorithm"`
}

type TrustSignaturesInfo struct {
	Required bool         `json:"required"`
	Signers  []SignerInfo `json:"signers,omitempty"`
}

type SignerInfo struct {
	Name      string `json:"name"`
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
}

// BuildInfo records the provenance of the artifact: which tool built it,
// when, on what host, and whether that timestamp was deterministic
// (SOURCE_DATE_EPOCH-derived) or wall-clock.
type BuildInfo struct {
	Tool          string       `json:"tool"`
	ToolVersion   string       `json:"tool_version"`
	Timestamp     string       `json:"timestamp"`
	Deterministic bool         `json:"deterministic"`
	Platform      PlatformInfo `json:"platform"`
}

type PlatformInfo struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
	Host string `json:"host"`
}

// LauncherInfo describes the embedded launcher binary itself.
type LauncherInfo struct {
	Tool         string   `json:"tool"`
	ToolVersion  string   `json:"tool_version"`
	Size         int64    `json:"size"`
	Checksum     string   `json:"checksum"`
	Capabilities []string `json:"capabilities"`
}

type CompatibilityInfo struct {
	MinFormatVersion string   `json:"min_format_version"`
	Features         []string `json:"features"`
}
