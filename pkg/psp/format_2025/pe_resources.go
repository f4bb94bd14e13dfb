//go:build windows
// +build windows

package format_2025

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/hashicorp/go-hclog"
	"github.com/tc-hib/winres"
	"golang.org/x/sys/windows"
)

const (
	// PSPFResourceType is the PE resource type PSPF data is stored under
	// (RT_RCDATA — generic binary data, not a recognized resource kind).
	PSPFResourceType = winres.RT_RCDATA

	// PSPFResourceName names the resource entry itself.
	PSPFResourceName = "PSPF"

	// PSPFResourceLang is the resource's language ID (en-US).
	PSPFResourceLang = 0x0409
)

// EmbedPSPFAsResource embeds pspfData into exePath's PE resource table
// instead of appending it to the file. Go-toolchain Windows executables
// can be rejected by the loader when data is appended past the last
// section, so carrying the payload as a proper PE resource sidesteps that
// entirely.
func EmbedPSPFAsResource(exePath string, pspfData []byte, logger hclog.Logger) error {
	logger.Info("embedding PSPF data as PE resource", "exe", exePath, "pspf_size", len(pspfData))

	rs, err := loadOrCreateResourceSet(exePath, logger)
	if err != nil {
		return err
	}

	logger.Debug("setting PSPF resource data", "lang", fmt.Sprintf("0x%04x", PSPFResourceLang), "size", len(pspfData))
	if err := rs.Set(PSPFResourceType, winres.Name(PSPFResourceName), PSPFResourceLang, pspfData); err != nil {
		return fmt.Errorf("failed to set PSPF resource: %w", err)
	}

	if err := writeResourceSetToEXE(rs, exePath, logger); err != nil {
		return err
	}

	logger.Info("successfully embedded PSPF as PE resource", "exe", exePath, "pspf_size", len(pspfData))
	return nil
}

// loadOrCreateResourceSet reads exePath's existing PE resources, or starts
// a fresh ResourceSet if the file carries none.
func loadOrCreateResourceSet(exePath string, logger hclog.Logger) (*winres.ResourceSet, error) {
	inputFile, err := os.Open(exePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open EXE for reading: %w", err)
	}

	rs, err := winres.LoadFromEXE(inputFile)
	if err != nil {
		logger.Debug("creating new resource set (no existing resources)")
		rs = &winres.ResourceSet{}
	} else {
		logger.Debug("loaded existing resources from EXE")
	}

	if err := inputFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close input file: %w", err)
	}
	return rs, nil
}

// writeResourceSetToEXE writes rs into a sibling ".tmp" file built from
// exePath's existing content, then atomically replaces exePath with it.
// Every file handle is closed explicitly (not deferred) because Windows
// holds an exclusive lock while a handle is open, and the final replace
// can't proceed until both handles are released.
func writeResourceSetToEXE(rs *winres.ResourceSet, exePath string, logger hclog.Logger) error {
	tmpPath := exePath + ".tmp"

	inputFile, err := os.Open(exePath)
	if err != nil {
		return fmt.Errorf("failed to open EXE for reading (2nd pass): %w", err)
	}

	outputFile, err := os.Create(tmpPath)
	if err != nil {
		inputFile.Close()
		return fmt.Errorf("failed to create temporary output file: %w", err)
	}

	logger.Debug("writing resources to temporary file")
	if err := rs.WriteToEXE(outputFile, inputFile); err != nil {
		outputFile.Close()
		inputFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write resources to EXE: %w", err)
	}

	if err := outputFile.Close(); err != nil {
		inputFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := inputFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close input file: %w", err)
	}

	logger.Debug("files closed, attempting atomic file replacement")
	if err := atomicReplace(tmpPath, exePath, logger); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace EXE atomically: %w", err)
	}
	return nil
}

// ReadPSPFFromResource reads the PSPF resource embedded in exePath by a
// prior EmbedPSPFAsResource call, for launchers that read their own
// payload from PE resources rather than from EOF.
func ReadPSPFFromResource(exePath string, logger hclog.Logger) ([]byte, error) {
	logger.Debug("reading PSPF from PE resources", "exe", exePath)

	handle, err := windows.LoadLibraryEx(exePath, 0, windows.LOAD_LIBRARY_AS_DATAFILE)
	if err != nil {
		return nil, fmt.Errorf("failed to load EXE as data file: %w", err)
	}
	defer windows.FreeLibrary(handle)

	resInfo, err := windows.FindResource(handle, windows.StringToUTF16Ptr(PSPFResourceName), windows.RT_RCDATA)
	if err != nil {
		return nil, fmt.Errorf("PSPF resource not found (name=%s): %w", PSPFResourceName, err)
	}

	resData, err := windows.LoadResource(handle, resInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource data: %w", err)
	}

	size, err := windows.SizeofResource(handle, resInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource size: %w", err)
	}
	if size == 0 {
		return nil, fmt.Errorf("resource has zero size")
	}

	ptr, err := windows.LockResource(resData)
	if err != nil {
		return nil, fmt.Errorf("failed to lock resource: %w", err)
	}
	if ptr == 0 {
		return nil, fmt.Errorf("lock resource returned null pointer")
	}

	// Resource memory is owned by Windows and read-only; copy it out
	// before FreeLibrary (deferred above) invalidates the mapping.
	resourceMem := (*[1 << 30]byte)(unsafe.Pointer(ptr))[:size:size]
	data := make([]byte, size)
	copy(data, resourceMem)

	logger.Info("successfully read PSPF from PE resources", "exe", exePath, "pspf_size", size)
	return data, nil
}

// HasPSPFResource reports whether exePath carries an embedded PSPF
// resource, used to pick between resource-based and EOF-based reading.
func HasPSPFResource(exePath string, logger hclog.Logger) bool {
	_, err := ReadPSPFFromResource(exePath, logger)
	return err == nil
}
