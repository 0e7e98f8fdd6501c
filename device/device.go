package device

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/disk"
)

var getParts = disk.Partitions
var getUsage = disk.Usage

// Device represents the mount point a backup directory lives on
type Device struct {
	MountPoint     string
	DevicePath     string
	AvailableSpace uint64
	AllocatedSpace uint64
}

// RemainingSpace returns the amount of space remaining on the device
func (dev *Device) RemainingSpace() uint64 {
	if dev.AllocatedSpace > dev.AvailableSpace {
		return 0
	}
	return dev.AvailableSpace - dev.AllocatedSpace
}

// ReserveSpace reserves the requested space on the device
// Space can be negative, to free allocated space
func (dev *Device) ReserveSpace(needed int64) {
	if needed >= 0 {
		dev.AllocatedSpace += uint64(needed)
		return
	}
	freed := uint64(-needed)
	if freed > dev.AllocatedSpace {
		freed = dev.AllocatedSpace
	}
	dev.AllocatedSpace -= freed
}

// Fits reports whether size more bytes can be reserved
func (dev *Device) Fits(size int64) bool {
	return size <= 0 || dev.RemainingSpace() >= uint64(size)
}

// ForPath returns the device holding path, which must exist
func ForPath(path string) (Device, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Device{}, fmt.Errorf("cannot resolve %s: %w", path, err)
	}

	usage, err := getUsage(abs)
	if err != nil {
		return Device{}, fmt.Errorf("failed to get disk usage of %s: %w", abs, err)
	}

	dev := Device{MountPoint: usage.Path, AvailableSpace: usage.Free}

	// Partition lookup only names the device, usage alone is enough to size it
	parts, err := getParts(false)
	if err != nil {
		return dev, nil
	}
	best := -1
	for _, part := range parts {
		if contains(part.Mountpoint, abs) && len(part.Mountpoint) > best {
			best = len(part.Mountpoint)
			dev.MountPoint = part.Mountpoint
			dev.DevicePath = part.Device
		}
	}
	return dev, nil
}

// contains reports whether path is mount or below it
func contains(mount, path string) bool {
	if mount == "" {
		return false
	}
	if mount == path {
		return true
	}
	prefix := mount
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
