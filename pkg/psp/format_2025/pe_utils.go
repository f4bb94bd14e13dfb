//
// SPDX-FileCopyrightText: Copyright (c) 2025 provide.io llc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
//

// Package format_2025 implements the PSPF/2025 format specification
package format_2025

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// TargetDOSStubSize is the DOS stub size launchers are expanded to before
// PSPF data is appended, matching the larger stub MSVC-built launchers
// carry natively (240 bytes / 0xF0).
const TargetDOSStubSize = 0xF0

const (
	peSignatureOffset   = 0x3C // e_lfanew field in the DOS header
	peCOFFHeaderSize    = 4    // "PE\0\0" signature preceding the COFF header
	sectionHeaderSize   = 40
	debugDirEntrySize   = 28
	optionalHeaderStart = 20 // bytes from COFF header start to optional header start
)

// isPEExecutable reports whether data opens with the "MZ" DOS signature
// that marks a Windows PE executable.
func isPEExecutable(data []byte) bool {
	return len(data) >= 2 && data[0] == 'M' && data[1] == 'Z'
}

// getPEHeaderOffset reads e_lfanew from the DOS header and validates the
// "PE\0\0" signature found there, returning the PE header's file offset.
func getPEHeaderOffset(data []byte) (int, error) {
	if len(data) < 0x40 {
		return 0, fmt.Errorf("data too short to contain DOS header")
	}

	peOffset := int(binary.LittleEndian.Uint32(data[peSignatureOffset : peSignatureOffset+4]))
	if len(data) < peOffset+4 {
		return 0, fmt.Errorf("data too short to contain PE header at offset 0x%x", peOffset)
	}

	sig := data[peOffset : peOffset+4]
	if !bytes.Equal(sig, []byte{'P', 'E', 0, 0}) {
		return 0, fmt.Errorf("invalid PE signature at offset 0x%x: expected 'PE\\x00\\x00', got %v", peOffset, sig)
	}
	return peOffset, nil
}

// peLayout captures the handful of COFF/optional-header offsets every PE
// patching routine below needs, so each one doesn't re-derive them.
type peLayout struct {
	coffOffset    int
	numSections   int
	sectionTable  int
	dataDirOffset int
}

// readPELayout walks the COFF header and optional header of a PE image
// already known to have a valid e_lfanew, returning the derived offsets
// used to locate the section table and data directory array.
func readPELayout(data []byte) peLayout {
	peOffset := int(binary.LittleEndian.Uint32(data[peSignatureOffset : peSignatureOffset+4]))
	coffOffset := peOffset + peCOFFHeaderSize

	numSections := int(binary.LittleEndian.Uint16(data[coffOffset+2 : coffOffset+4]))
	optHdrSize := int(binary.LittleEndian.Uint16(data[coffOffset+16 : coffOffset+18]))
	sectionTable := coffOffset + optionalHeaderStart + optHdrSize

	magic := binary.LittleEndian.Uint16(data[coffOffset+20 : coffOffset+22])
	isPE32Plus := magic == 0x20B
	dataDirOffset := coffOffset + optionalHeaderStart + 96
	if isPE32Plus {
		dataDirOffset = coffOffset + optionalHeaderStart + 112
	}

	return peLayout{
		coffOffset:    coffOffset,
		numSections:   numSections,
		sectionTable:  sectionTable,
		dataDirOffset: dataDirOffset,
	}
}

// dataDirEntry reads one 8-byte (rva/offset, size) entry from the PE data
// directory array, identified by its index (4 = Certificate Table, 6 =
// Debug Directory). ok is false if the entry falls outside data.
func dataDirEntry(data []byte, layout peLayout, index int) (value, size uint32, ok bool) {
	entryOffset := layout.dataDirOffset + index*8
	if entryOffset+8 > len(data) {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(data[entryOffset : entryOffset+4]),
		binary.LittleEndian.Uint32(data[entryOffset+4 : entryOffset+8]),
		true
}

// needsDOSStubExpansion reports whether data is a PE executable built with
// the minimal 128-byte (0x80) DOS stub Go's linker emits, which the
// Windows loader rejects once PSPF data is appended after it.
func needsDOSStubExpansion(data []byte, logger hclog.Logger) bool {
	if !isPEExecutable(data) {
		return false
	}
	peOffset, err := getPEHeaderOffset(data)
	if err != nil {
		return false
	}

	if peOffset == 0x80 {
		logger.Debug("detected minimal DOS stub", "pe_offset", fmt.Sprintf("0x%x", peOffset))
		return true
	}
	logger.Trace("PE binary has adequate DOS stub size", "pe_offset", fmt.Sprintf("0x%x", peOffset))
	return false
}

// updateSectionOffsets shifts every section's PointerToRawData forward by
// paddingSize, needed after the DOS stub grows and all following file
// content moves down.
func updateSectionOffsets(data []byte, paddingSize int, logger hclog.Logger) error {
	layout := readPELayout(data)
	logger.Debug("updating section offsets", "num_sections", layout.numSections, "padding_size", paddingSize)

	updated := 0
	for i := 0; i < layout.numSections; i++ {
		ptrOffset := layout.sectionTable + i*sectionHeaderSize + 20
		current := binary.LittleEndian.Uint32(data[ptrOffset : ptrOffset+4])
		if current == 0 {
			continue
		}
		newPtr := current + uint32(paddingSize)
		binary.LittleEndian.PutUint32(data[ptrOffset:ptrOffset+4], newPtr)
		logger.Trace("updated section offset", "section", i, "old_offset", fmt.Sprintf("0x%x", current), "new_offset", fmt.Sprintf("0x%x", newPtr))
		updated++
	}

	logger.Debug("section offsets updated", "updated_count", updated, "total_sections", layout.numSections)
	return nil
}

// updateDataDirectories adjusts the Certificate Table entry (data
// directory #4), the one data directory that stores an absolute file
// offset rather than an RVA, and zeroes the PE checksum (unused outside
// drivers/DLLs, and now stale after the edit).
func updateDataDirectories(data []byte, paddingSize int, logger hclog.Logger) error {
	layout := readPELayout(data)

	certOffset, certSize, ok := dataDirEntry(data, layout, 4)
	if !ok {
		logger.Trace("certificate table entry beyond file bounds, skipping update")
		return nil
	}
	logger.Trace("checked certificate table", "offset", fmt.Sprintf("0x%x", certOffset), "size", certSize)

	if certOffset >= 0x80 {
		newOffset := certOffset + uint32(paddingSize)
		entryOffset := layout.dataDirOffset + 4*8
		binary.LittleEndian.PutUint32(data[entryOffset:entryOffset+4], newOffset)
		logger.Debug("updated certificate table offset", "old_offset", fmt.Sprintf("0x%x", certOffset), "new_offset", fmt.Sprintf("0x%x", newOffset))
	}

	checksumOffset := layout.coffOffset + optionalHeaderStart + 64
	binary.LittleEndian.PutUint32(data[checksumOffset:checksumOffset+4], 0)
	logger.Trace("zeroed PE checksum (not required for executables)")
	return nil
}

// rvaToFileOffset maps a Relative Virtual Address to a file offset by
// finding the section whose virtual range contains it.
func rvaToFileOffset(data []byte, rva uint32, logger hclog.Logger) (uint32, bool) {
	layout := readPELayout(data)

	for i := 0; i < layout.numSections; i++ {
		sectionOffset := layout.sectionTable + i*sectionHeaderSize
		virtualAddr := binary.LittleEndian.Uint32(data[sectionOffset+12 : sectionOffset+16])
		virtualSize := binary.LittleEndian.Uint32(data[sectionOffset+8 : sectionOffset+12])
		pointerToRawData := binary.LittleEndian.Uint32(data[sectionOffset+20 : sectionOffset+24])

		if rva >= virtualAddr && rva < virtualAddr+virtualSize {
			fileOffset := pointerToRawData + (rva - virtualAddr)
			logger.Trace("mapped RVA to file offset", "rva", fmt.Sprintf("0x%x", rva), "section", i, "section_va", fmt.Sprintf("0x%x", virtualAddr), "file_offset", fmt.Sprintf("0x%x", fileOffset))
			return fileOffset, true
		}
	}

	logger.Trace("RVA not found in any section", "rva", fmt.Sprintf("0x%x", rva))
	return 0, false
}

// updateDebugDirectory rewrites PointerToRawData in every IMAGE_DEBUG_DIRECTORY
// entry (the Debug Directory's AddressOfRawData is an RVA and needs no
// change; PointerToRawData is an absolute file offset and does).
func updateDebugDirectory(data []byte, paddingSize int, logger hclog.Logger) error {
	layout := readPELayout(data)

	debugRVA, debugSize, ok := dataDirEntry(data, layout, 6)
	if !ok {
		logger.Trace("debug directory entry beyond file bounds, skipping")
		return nil
	}
	if debugRVA == 0 || debugSize == 0 {
		logger.Trace("no debug directory present (RVA or size is 0)")
		return nil
	}

	debugFileOffset, found := rvaToFileOffset(data, debugRVA, logger)
	if !found {
		logger.Trace("unable to map debug directory RVA to file offset, skipping debug directory update", "debug_dir_rva", fmt.Sprintf("0x%x", debugRVA))
		return nil
	}
	logger.Debug("found debug directory", "rva", fmt.Sprintf("0x%x", debugRVA), "file_offset", fmt.Sprintf("0x%x", debugFileOffset), "size", debugSize)

	numEntries := int(debugSize) / debugDirEntrySize
	logger.Debug("debug directory entry count", "count", numEntries)

	updated := 0
	for i := 0; i < numEntries; i++ {
		entryOffset := int(debugFileOffset) + i*debugDirEntrySize
		ptrOffset := entryOffset + 24 // PointerToRawData within IMAGE_DEBUG_DIRECTORY
		if ptrOffset+4 > len(data) {
			logger.Trace("debug entry PointerToRawData beyond file bounds", "entry", i, "offset", fmt.Sprintf("0x%x", ptrOffset))
			continue
		}

		current := binary.LittleEndian.Uint32(data[ptrOffset : ptrOffset+4])
		if current > 0 && current >= 0x80 {
			newPtr := current + uint32(paddingSize)
			binary.LittleEndian.PutUint32(data[ptrOffset:ptrOffset+4], newPtr)
			logger.Trace("updated debug entry PointerToRawData", "entry", i, "old_offset", fmt.Sprintf("0x%x", current), "new_offset", fmt.Sprintf("0x%x", newPtr))
			updated++
		}
	}

	if updated > 0 {
		logger.Debug("updated debug directory entries", "updated_count", updated, "total_entries", numEntries)
	}
	return nil
}

// updateSizeOfHeaders grows the optional header's SizeOfHeaders field by
// paddingSize. The Windows loader requires sections to start at or after
// this offset; leaving it stale causes loader rejection (notably exit
// code 126 on ARM64).
func updateSizeOfHeaders(data []byte, paddingSize int, logger hclog.Logger) error {
	peOffset := binary.LittleEndian.Uint32(data[peSignatureOffset : peSignatureOffset+4])
	coffOffset := int(peOffset) + peCOFFHeaderSize
	offset := coffOffset + optionalHeaderStart + 60

	if offset+4 > len(data) {
		return fmt.Errorf("SizeOfHeaders offset 0x%x beyond file bounds", offset)
	}

	current := binary.LittleEndian.Uint32(data[offset : offset+4])
	newSize := current + uint32(paddingSize)
	binary.LittleEndian.PutUint32(data[offset:offset+4], newSize)

	logger.Debug("updated SizeOfHeaders field", "old_size", fmt.Sprintf("0x%x", current), "new_size", fmt.Sprintf("0x%x", newSize), "padding", paddingSize)
	return nil
}

// expandDOSStub grows a PE executable's DOS stub to TargetDOSStubSize and
// fixes up every absolute file offset that shift invalidates: the section
// table, SizeOfHeaders, the Certificate Table entry, and debug directory
// entries. Go's linker emits a 128-byte stub that the Windows loader
// rejects once PSPF data is appended directly after the PE sections; this
// gives the launcher the same stub size a natively MSVC-built binary has.
func expandDOSStub(data []byte, logger hclog.Logger) ([]byte, error) {
	if !isPEExecutable(data) {
		return nil, fmt.Errorf("data is not a Windows PE executable")
	}

	currentPEOffset, err := getPEHeaderOffset(data)
	if err != nil {
		return nil, fmt.Errorf("invalid PE header offset: %w", err)
	}
	if currentPEOffset >= TargetDOSStubSize {
		logger.Debug("DOS stub already adequate size", "current", fmt.Sprintf("0x%x", currentPEOffset), "target", fmt.Sprintf("0x%x", TargetDOSStubSize))
		return data, nil
	}

	paddingSize := TargetDOSStubSize - currentPEOffset
	logger.Info("expanding DOS stub for Windows compatibility", "current_pe_offset", fmt.Sprintf("0x%x", currentPEOffset), "target_pe_offset", fmt.Sprintf("0x%x", TargetDOSStubSize), "padding_bytes", paddingSize)

	newData := make([]byte, 0, len(data)+paddingSize)
	newData = append(newData, data[:currentPEOffset]...)
	newData = append(newData, make([]byte, paddingSize)...)
	newData = append(newData, data[currentPEOffset:]...)
	binary.LittleEndian.PutUint32(newData[peSignatureOffset:peSignatureOffset+4], uint32(TargetDOSStubSize))

	if err := updateSectionOffsets(newData, paddingSize, logger); err != nil {
		return nil, fmt.Errorf("failed to update section offsets: %w", err)
	}
	if err := updateSizeOfHeaders(newData, paddingSize, logger); err != nil {
		return nil, fmt.Errorf("failed to update SizeOfHeaders: %w", err)
	}
	if err := updateDataDirectories(newData, paddingSize, logger); err != nil {
		return nil, fmt.Errorf("failed to update data directories: %w", err)
	}
	if err := updateDebugDirectory(newData, paddingSize, logger); err != nil {
		return nil, fmt.Errorf("failed to update debug directory: %w", err)
	}

	newPEOffset, err := getPEHeaderOffset(newData)
	if err != nil {
		return nil, fmt.Errorf("failed to read PE offset after modification: %w", err)
	}
	if newPEOffset != TargetDOSStubSize {
		return nil, fmt.Errorf("failed to update PE offset: expected 0x%x, got 0x%x", TargetDOSStubSize, newPEOffset)
	}

	logger.Debug("DOS stub expansion complete", "original_size", len(data), "new_size", len(newData), "bytes_added", paddingSize, "new_pe_offset", fmt.Sprintf("0x%x", newPEOffset))
	return newData, nil
}

// GetLauncherType classifies a launcher binary's compiler origin from its
// DOS stub size: the Go linker emits a 128-byte (0x80) stub, while MSVC
// toolchains emit 232 bytes (0xE8) or more. Returns "go", "rust", or
// "unknown".
func GetLauncherType(launcherData []byte, logger hclog.Logger) string {
	if !isPEExecutable(launcherData) {
		return "unknown"
	}
	peOffset, err := getPEHeaderOffset(launcherData)
	if err != nil {
		return "unknown"
	}

	switch {
	case peOffset == 0x80:
		logger.Debug("detected go-toolchain launcher", "pe_offset", fmt.Sprintf("0x%x", peOffset))
		return "go"
	case peOffset >= 0xE8:
		logger.Debug("detected msvc-toolchain launcher", "pe_offset", fmt.Sprintf("0x%x", peOffset))
		return "rust"
	default:
		logger.Debug("unknown launcher type", "pe_offset", fmt.Sprintf("0x%x", peOffset))
		return "unknown"
	}
}

// ProcessLauncherForPSPF prepares a launcher binary for PSPF data to be
// appended after it. Go-toolchain launchers are left untouched — PSPF data
// becomes a PE overlay appended after all sections, which is the standard
// technique and preserves the PE structure exactly — while MSVC-toolchain
// launchers whose PE header sits below 0xF0 get their DOS stub expanded so
// the PE header lands at 0xF0. Non-PE (Unix) binaries pass through
// unchanged.
func ProcessLauncherForPSPF(launcherData []byte, logger hclog.Logger) ([]byte, error) {
	if !isPEExecutable(launcherData) {
		logger.Trace("launcher is not a PE executable, no processing needed")
		return launcherData, nil
	}

	switch GetLauncherType(launcherData, logger) {
	case "go":
		logger.Info("using PE overlay approach for go-toolchain launcher (no PE modifications)")
		return launcherData, nil
	case "rust":
		// expandDOSStub returns the data unchanged when the stub is already 0xF0 or larger
		logger.Info("expanding DOS stub for msvc-toolchain launcher (PE header at 0xF0)")
		return expandDOSStub(launcherData, logger)
	default:
		logger.Info("unknown launcher type, using PE overlay approach")
		return launcherData, nil
	}
}
