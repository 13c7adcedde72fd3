//go:build !windows

package filesystem

import (
	"fmt"
	"syscall"

	"github.com/vertextoedge/modfetch/internal/port"
)

// GetDiskUsage returns disk usage for the volume holding the downloads root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.rootDir, &stat); err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	bsize := uint64(stat.Bsize)
	return newDiskUsage(stat.Blocks*bsize, stat.Bavail*bsize), nil
}
