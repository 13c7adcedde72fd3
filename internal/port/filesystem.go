package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileSystem is the on-disk store for partial and final downloads.
// Every dest argument is a request destination; relative destinations are
// resolved against RootDir. Unvalidated bytes only ever live at the partial
// path, which carries a distinct suffix until FinalizePartial renames it.
type FileSystem interface {
	// RootDir returns the downloads root directory
	RootDir() string

	// ResolvePath returns the final path for a destination
	ResolvePath(dest string) string

	// PartialPath returns the in-progress path for a destination
	PartialPath(dest string) string

	// PartialInfo returns size and modification time of the partial file
	PartialInfo(dest string) (int64, time.Time, error)

	// WritePartial copies reader into the partial file, appending when
	// resume is true and a partial exists.
	// Returns: total size of the partial file
	WritePartial(dest string, reader io.Reader, resume bool) (int64, error)

	// FinalizePartial renames the partial file to its final path
	FinalizePartial(dest string) (string, error)

	// DiscardPartial removes the partial file and any chunk parts
	DiscardPartial(dest string) error

	// WriteChunk stores one chunk of a chunked download
	WriteChunk(dest string, index int, data []byte) error

	// ReadChunk loads a previously stored chunk
	ReadChunk(dest string, index int) ([]byte, error)

	// AssembleChunks concatenates chunks 0..count-1 into the partial file
	AssembleChunks(dest string, count int) (int64, error)

	// DeleteFile removes a file
	DeleteFile(path string) error

	// FileExists checks if a file exists
	FileExists(path string) bool

	// GetFileSize returns the size of a file
	GetFileSize(path string) (int64, error)

	// GetDiskUsage returns disk usage statistics
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes partial files and chunk parts older than
	// the specified duration. Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)

	// CleanEmptyDirs removes empty directories under the root
	CleanEmptyDirs() error
}
