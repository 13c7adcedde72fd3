//go:build windows

package filesystem

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/vertextoedge/modfetch/internal/port"
)

// GetDiskUsage returns disk usage for the volume holding the downloads root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	root, err := windows.UTF16PtrFromString(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("invalid root dir: %w", err)
	}

	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(root, &freeToCaller, &total, &totalFree); err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}
	return newDiskUsage(total, freeToCaller), nil
}
