package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/modfetch/internal/port"
)

const (
	// PartialSuffix marks bytes that have not passed validation yet
	PartialSuffix = ".downloading"

	partsDirSuffix = PartialSuffix + ".parts"
)

// Manager handles local filesystem operations
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 1024*1024) // 1MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create downloads root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1024 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// BufferSize returns the copy buffer size
func (m *Manager) BufferSize() int {
	return m.bufferSize
}

// RootDir returns the downloads root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// ResolvePath returns the final path for a destination
func (m *Manager) ResolvePath(dest string) string {
	if filepath.IsAbs(dest) {
		return filepath.Clean(dest)
	}
	return filepath.Join(m.rootDir, dest)
}

// PartialPath returns the in-progress path for a destination
func (m *Manager) PartialPath(dest string) string {
	return m.ResolvePath(dest) + PartialSuffix
}

func (m *Manager) partsDir(dest string) string {
	return m.ResolvePath(dest) + partsDirSuffix
}

// ChunkPath returns where chunk index of dest is stored
func (m *Manager) ChunkPath(dest string, index int) string {
	return filepath.Join(m.partsDir(dest), fmt.Sprintf("part-%05d%s", index, PartialSuffix))
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// PartialInfo returns size and modification time of the partial file.
// Returns error if file does not exist
func (m *Manager) PartialInfo(dest string) (int64, time.Time, error) {
	info, err := os.Stat(m.PartialPath(dest))
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// WritePartial writes content to the partial file with optional resume support
func (m *Manager) WritePartial(dest string, reader io.Reader, resume bool) (int64, error) {
	partialPath := m.PartialPath(dest)

	// Ensure parent directory exists
	if err := m.EnsureDir(partialPath); err != nil {
		return 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	var f *os.File
	var existingSize int64
	var err error

	if resume {
		// Check if partial file exists and get its size
		if info, statErr := os.Stat(partialPath); statErr == nil {
			existingSize = info.Size()
			f, err = os.OpenFile(partialPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return 0, fmt.Errorf("failed to open partial file for resume: %w", err)
			}
		} else {
			f, err = os.Create(partialPath)
			if err != nil {
				return 0, fmt.Errorf("failed to create partial file: %w", err)
			}
		}
	} else {
		f, err = os.Create(partialPath)
		if err != nil {
			return 0, fmt.Errorf("failed to create partial file: %w", err)
		}
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		return existingSize + written, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		return existingSize + written, fmt.Errorf("failed to close file: %w", err)
	}

	return existingSize + written, nil
}

// FinalizePartial renames the validated partial file to its final path
func (m *Manager) FinalizePartial(dest string) (string, error) {
	finalPath := m.ResolvePath(dest)
	if err := os.Rename(m.PartialPath(dest), finalPath); err != nil {
		return "", fmt.Errorf("failed to rename partial file: %w", err)
	}
	return finalPath, nil
}

// DiscardPartial removes the partial file and any chunk parts
func (m *Manager) DiscardPartial(dest string) error {
	if err := os.Remove(m.PartialPath(dest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete partial file: %w", err)
	}
	if err := os.RemoveAll(m.partsDir(dest)); err != nil {
		return fmt.Errorf("failed to delete chunk parts: %w", err)
	}
	return nil
}

// WriteChunk stores one chunk of a chunked download
func (m *Manager) WriteChunk(dest string, index int, data []byte) error {
	path := m.ChunkPath(dest, index)
	if err := m.EnsureDir(path); err != nil {
		return fmt.Errorf("failed to create parts dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	return nil
}

// ReadChunk loads a previously stored chunk
func (m *Manager) ReadChunk(dest string, index int) ([]byte, error) {
	return os.ReadFile(m.ChunkPath(dest, index))
}

// AssembleChunks concatenates chunks in index order into the partial file
// and removes the parts directory
func (m *Manager) AssembleChunks(dest string, count int) (int64, error) {
	partialPath := m.PartialPath(dest)
	if err := m.EnsureDir(partialPath); err != nil {
		return 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	out, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create partial file: %w", err)
	}

	buf := make([]byte, m.bufferSize)
	var total int64
	for i := 0; i < count; i++ {
		in, err := os.Open(m.ChunkPath(dest, i))
		if err != nil {
			out.Close()
			return total, fmt.Errorf("failed to open chunk %d: %w", i, err)
		}
		n, err := io.CopyBuffer(out, in, buf)
		in.Close()
		total += n
		if err != nil {
			out.Close()
			return total, fmt.Errorf("failed to append chunk %d: %w", i, err)
		}
	}

	if err := out.Close(); err != nil {
		return total, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.RemoveAll(m.partsDir(dest)); err != nil {
		return total, fmt.Errorf("failed to delete chunk parts: %w", err)
	}
	return total, nil
}

// DeleteFile removes a file
func (m *Manager) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetFileSize returns the size of a file
func (m *Manager) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CleanOldTempFiles removes partial files and chunk parts older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, PartialSuffix) {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

// CleanEmptyDirs removes empty directories under root
func (m *Manager) CleanEmptyDirs() error {
	var dirs []string
	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != m.rootDir {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Deepest first so parents empty out as children go
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i]) // Will only succeed if empty
	}
	return nil
}
