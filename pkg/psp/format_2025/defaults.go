package format_2025

// Page size used when aligning mmap-friendly regions; differs on Apple
// Silicon where the kernel enforces a 16 KiB page.
const (
	PageSize      = 4096
	PageSizeMacOS = 16384
)

// Default POSIX permissions, owner-only: FilePerms for extracted slot files
// that carry no permissions of their own, ExecutablePerms for the built
// bundle, DirPerms for the workenv and extraction directories. Lock files
// and metadata sidecars are written 0644 and do not use these constants.
const (
	FilePerms       = 0o600
	ExecutablePerms = 0o700
	DirPerms        = 0o700
)

// DiskSpaceMultiplier is the safety factor applied to the sum of slot
// sizes when checking free space before extraction: reserve headroom for
// both the compressed bytes momentarily held in tmp/<pid>/ and their
// decompressed form once merged into the workenv.
const DiskSpaceMultiplier = 2

// MaxMemory and MinMemory are memory bounds in bytes; no code in this
// package reads them (slot processing does not size buffers by them).
const (
	MaxMemory = 128 * 1024 * 1024
	MinMemory = 8 * 1024 * 1024
)

// WorkenvPaths layout components, per spec §3.
const (
	PSPFHiddenPrefix    = "."
	PSPFSuffix          = ".pspf"
	InstanceDir         = "instance"
	PackageDir          = "package"
	TmpDir              = "tmp"
	ExtractDir          = "extract"
	LogDir              = "log"
	LockFile            = "lock"
	CompleteFile        = "complete"
	PackageChecksumFile = "package.checksum"
	PSPMetadataFile     = "psp.json"
	IndexMetadataFile   = "index.json"
)

// DefaultValidationLevel is used when FLAVOR_VALIDATION is unset.
const DefaultValidationLevel = "standard"
