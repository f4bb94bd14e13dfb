package format_2025

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// HashName derives the 64-bit name hash stored in a slot descriptor: the
// first 8 bytes of SHA-256(name) read as a little-endian integer. Any
// reader or builder computing this hash for the same target path must
// arrive at the same value, so the derivation is fixed by the format.
func HashName(name string) uint64 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint64(sum[:8])
}

// SlotMetadata is the JSON-facing view of one slot entry in the metadata
// document's "slots" array.
type SlotMetadata struct {
	Slot        int    `json:"slot"`
	ID          string `json:"id"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	Operations  string `json:"operations"`
	Purpose     string `json:"purpose"`
	Lifecycle   string `json:"lifecycle"`
	Resolution  string `json:"resolution,omitempty"`
	Permissions string `json:"permissions,omitempty"`
	SelfRef     *bool  `json:"self_ref,omitempty"`
}

// SlotDescriptor mirrors the on-disk 64-byte slot table entry: seven
// little-endian uint64 fields (56 bytes) followed by eight single-byte
// fields (8 bytes). Field order and widths are fixed by the format and
// must not change independently of a version bump.
type SlotDescriptor struct {
	ID           uint64
	NameHash     uint64
	Offset       uint64
	Size         uint64
	OriginalSize uint64
	Operations   uint64
	Checksum     uint64

	Purpose         uint8
	Lifecycle       uint8
	Priority        uint8
	Platform        uint8
	Reserved1       uint8
	Reserved2       uint8
	Permissions     uint8
	PermissionsHigh uint8
}

var descriptorLog = hclog.New(&hclog.LoggerOptions{
	Name:  "pspf2025.slots",
	Level: hclog.Trace,
})

// descriptorU64Fields lists, in on-disk order, the seven 8-byte fields of
// a SlotDescriptor as pointers, so Pack/Unpack can walk one
// table instead of repeating the same PutUint64/Uint64 call seven times.
func (d *SlotDescriptor) descriptorU64Fields() [7]*uint64 {
	return [7]*uint64{&d.ID, &d.NameHash, &d.Offset, &d.Size, &d.OriginalSize, &d.Operations, &d.Checksum}
}

func (d *SlotDescriptor) descriptorByteFields() [8]*uint8 {
	return [8]*uint8{
		&d.Purpose, &d.Lifecycle, &d.Priority, &d.Platform,
		&d.Reserved1, &d.Reserved2, &d.Permissions, &d.PermissionsHigh,
	}
}

// Pack serializes the descriptor to exactly SlotDescriptorSize bytes.
func (d *SlotDescriptor) Pack() []byte {
	descriptorLog.Trace("packing slot descriptor", "id", d.ID, "operations", fmt.Sprintf("0x%016x", d.Operations))

	buf := make([]byte, SlotDescriptorSize)
	for i, field := range d.descriptorU64Fields() {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], *field)
	}
	for i, field := range d.descriptorByteFields() {
		buf[56+i] = *field
	}

	descriptorLog.Debug("packed slot descriptor", "size", len(buf))
	return buf
}

// UnpackSlotDescriptor deserializes a descriptor from exactly
// SlotDescriptorSize bytes.
func UnpackSlotDescriptor(data []byte) (*SlotDescriptor, error) {
	if len(data) != SlotDescriptorSize {
		descriptorLog.Error("invalid descriptor size", "expected", SlotDescriptorSize, "got", len(data))
		return nil, fmt.Errorf("invalid descriptor size: expected %d, got %d", SlotDescriptorSize, len(data))
	}

	d := &SlotDescriptor{}
	for i, field := range d.descriptorU64Fields() {
		*field = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	for i, field := range d.descriptorByteFields() {
		*field = data[56+i]
	}

	descriptorLog.Debug("unpacked slot descriptor", "id", d.ID, "operations", fmt.Sprintf("0x%016x", d.Operations))
	return d, nil
}

// GetPermissions reassembles the 16-bit POSIX mode split across the
// descriptor's low and high permission bytes.
func (d *SlotDescriptor) GetPermissions() uint16 {
	return uint16(d.Permissions) | uint16(d.PermissionsHigh)<<8
}

// SetPermissions splits a 16-bit POSIX mode into the descriptor's low and
// high permission bytes.
func (d *SlotDescriptor) SetPermissions(perms uint16) {
	d.Permissions = uint8(perms & 0xFF)
	d.PermissionsHigh = uint8(perms >> 8)
}
