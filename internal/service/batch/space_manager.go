package batch

import (
	"github.com/vertextoedge/modfetch/internal/port"
)

// SpaceManager handles space availability checks before a download starts
type SpaceManager struct {
	fs           port.FileSystem
	minFreeSpace int64
}

// NewSpaceManager creates a new SpaceManager
func NewSpaceManager(fs port.FileSystem, minFreeSpace int64) *SpaceManager {
	return &SpaceManager{
		fs:           fs,
		minFreeSpace: minFreeSpace,
	}
}

// CheckSpace checks if there's enough space for a file of the given size.
// Bytes already sitting in the destination's partial file are not counted
// again.
func (sm *SpaceManager) CheckSpace(dest string, size int64) (*port.SpaceCheckResult, error) {
	result := &port.SpaceCheckResult{
		RequiredBytes: size,
		MinFreeBytes:  sm.minFreeSpace,
	}

	if partial, _, err := sm.fs.PartialInfo(dest); err == nil && partial > 0 && partial <= size {
		result.PartialBytesSaved = partial
		result.RequiredBytes = size - partial
	}

	usage, err := sm.fs.GetDiskUsage()
	if err != nil {
		return nil, err
	}
	result.FreeBytes = usage.Free
	result.DiskUsedPct = usage.UsedPct

	if result.RequiredBytes == 0 {
		result.HasSpace = true
		return result, nil
	}

	if usage.Free < uint64(result.RequiredBytes) {
		return result, nil
	}

	// Check if adding this file would eat into the reserved headroom
	if usage.Free-uint64(result.RequiredBytes) < uint64(sm.minFreeSpace) {
		result.LimitedByMinFree = true
		return result, nil
	}

	result.HasSpace = true
	return result, nil
}

// HasSpace returns true if there's enough space for the given file size
func (sm *SpaceManager) HasSpace(dest string, size int64) (bool, error) {
	result, err := sm.CheckSpace(dest, size)
	if err != nil {
		return false, err
	}
	return result.HasSpace, nil
}

// Ensure SpaceManager implements port.SpaceManager
var _ port.SpaceManager = (*SpaceManager)(nil)
