// Package archivefs serves files out of downloaded archives keyed by their
// content hash.
package archivefs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/mholt/archives"
	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// Extractor implements port.ArchiveExtractor over archives on disk
type Extractor struct {
	logger *zap.Logger

	mu    sync.RWMutex
	paths map[string]string // hash -> archive path
}

var _ port.ArchiveExtractor = (*Extractor)(nil)

// New creates an empty Extractor
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger, paths: make(map[string]string)}
}

// Register indexes the archive at path under hash
func (e *Extractor) Register(hash, path string) {
	e.mu.Lock()
	e.paths[hash] = path
	e.mu.Unlock()
}

// RegisterAll indexes previously completed downloads
func (e *Extractor) RegisterAll(records []port.ArchiveRecord) {
	e.mu.Lock()
	for _, r := range records {
		if r.Hash != "" && r.Path != "" {
			e.paths[r.Hash] = r.Path
		}
	}
	e.mu.Unlock()
}

// Len returns the number of indexed archives
func (e *Extractor) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.paths)
}

// Lookup returns the path indexed under hash
func (e *Extractor) Lookup(hash string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.paths[hash]
	return p, ok
}

// IndexDir hashes every regular file under dir and registers it.
// Returns the number of files indexed
func (e *Extractor) IndexDir(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".downloading") {
			return nil
		}

		hash, err := fileHash(path)
		if err != nil {
			e.logger.Warn("failed to hash archive", zap.String("path", path), zap.Error(err))
			return nil
		}
		e.Register(hash, path)
		count++
		return nil
	})
	return count, err
}

// Extract copies innerPath out of the archive indexed under archiveHash
func (e *Extractor) Extract(ctx context.Context, archiveHash, innerPath string, w io.Writer) (int64, error) {
	path, ok := e.Lookup(archiveHash)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrArchiveNotFound, archiveHash)
	}

	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	name := entryName(innerPath)
	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s in %s", domain.ErrNotFound, name, archiveHash)
		}
		return 0, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", name, err)
	}

	e.logger.Debug("extracted entry",
		zap.String("archive", path),
		zap.String("entry", name),
		zap.Int64("size", n))
	return n, nil
}

// entryName normalises manifest paths to io/fs form
func entryName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "."
	}
	return p
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], h.Sum64())
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}
