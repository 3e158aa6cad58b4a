package gomtl

import (
	"bytes"

	"github.com/gomlx/gomtl/native"
)

// MaxStringLength is the capacity of the fixed-size strings of the records, including the NUL terminator.
const MaxStringLength = 256

// DeviceInfo is the fixed-size record describing a device, laid out as the C mtlDeviceInfo struct.
type DeviceInfo struct {
	// Name is NUL terminated, truncated to MaxStringLength-1 bytes.
	Name                         [MaxStringLength]byte
	IsLowPower                   uint8
	IsHeadless                   uint8
	RecommendedMaxWorkingSetSize uint64
	RegistryID                   uint64
}

func newDeviceInfo(info native.DeviceInfo) DeviceInfo {
	var record DeviceInfo
	copy(record.Name[:MaxStringLength-1], info.Name)
	if info.IsLowPower {
		record.IsLowPower = 1
	}
	if info.IsHeadless {
		record.IsHeadless = 1
	}
	record.RecommendedMaxWorkingSetSize = info.RecommendedMaxWorkingSetSize
	record.RegistryID = info.RegistryID
	return record
}

// NameString returns the name up to the NUL terminator.
func (info *DeviceInfo) NameString() string {
	name := info.Name[:]
	if n := bytes.IndexByte(name, 0); n >= 0 {
		name = name[:n]
	}
	return string(name)
}
