//go:generate mockgen -destination=./mocks/collaborators.go . NexusResolver,ArchiveExtractor,GameLocator

package port

import (
	"context"
	"io"
	"time"
)

// NexusResolver turns a Nexus mod file into a signed, time-limited URL.
// Authentication failures are returned as authorization errors; rate limits
// as rate_limited errors carrying a retry-after delay.
type NexusResolver interface {
	ResolveDownloadURL(ctx context.Context, gameDomain string, modID, fileID int64) (string, error)
}

// ArchiveExtractor reads a file out of an indexed parent archive.
// It returns domain.ErrArchiveNotFound when no archive with that hash has
// been indexed.
type ArchiveExtractor interface {
	Extract(ctx context.Context, archiveHash, innerPath string, w io.Writer) (int64, error)
}

// GameLocator finds the install directory of a game
type GameLocator interface {
	GameDir(game string) (string, error)
}

// RunRecord is one stored batch run
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Total      int
	Completed  int
	Skipped    int
	Failed     int
	Bytes      int64
}

// ArchiveRecord is a completed download that can serve as a parent archive
type ArchiveRecord struct {
	Hash string
	Path string
	Size int64
}
