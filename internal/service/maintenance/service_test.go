package maintenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/modfetch/internal/port"
)

// mockRunHistory implements port.RunHistory for testing
type mockRunHistory struct {
	port.RunHistory

	mu          sync.Mutex
	pruneCount  int
	pruneErr    error
	pruneCalled int
	pruneAge    time.Duration
}

func (m *mockRunHistory) PruneRuns(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalled++
	m.pruneAge = olderThan
	return m.pruneCount, m.pruneErr
}

func (m *mockRunHistory) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneCalled
}

// mockFileSystem implements port.FileSystem for testing
type mockFileSystem struct {
	port.FileSystem

	mu                   sync.Mutex
	cleanTempFilesCount  int
	cleanTempFilesErr    error
	cleanTempFilesCalled int
	cleanDirsCalled      int
}

func (m *mockFileSystem) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanTempFilesCalled++
	return m.cleanTempFilesCount, m.cleanTempFilesErr
}

func (m *mockFileSystem) CleanEmptyDirs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanDirsCalled++
	return nil
}

func (m *mockFileSystem) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanTempFilesCalled
}

func TestService_New(t *testing.T) {
	logger := zap.NewNop()
	fs := &mockFileSystem{}

	// Test with nil config (should use defaults)
	s := New(nil, fs, nil, logger)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.config.CleanupInterval != time.Hour {
		t.Errorf("CleanupInterval = %v, want %v", s.config.CleanupInterval, time.Hour)
	}
	if s.config.TempFileMaxAge != 24*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 24*time.Hour)
	}

	// Zero fields are filled in
	s = New(&Config{TempFileMaxAge: 6 * time.Hour}, fs, nil, nil)
	if s.config.TempFileMaxAge != 6*time.Hour {
		t.Errorf("TempFileMaxAge = %v, want %v", s.config.TempFileMaxAge, 6*time.Hour)
	}
	if s.config.HistoryMaxAge != 30*24*time.Hour {
		t.Errorf("HistoryMaxAge = %v, want %v", s.config.HistoryMaxAge, 30*24*time.Hour)
	}
}

func TestService_RunOnce(t *testing.T) {
	fs := &mockFileSystem{cleanTempFilesCount: 2}
	history := &mockRunHistory{pruneCount: 3}

	s := New(&Config{HistoryMaxAge: 48 * time.Hour}, fs, history, zap.NewNop())
	stats, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if stats.TempFiles != 2 {
		t.Errorf("TempFiles = %d, want 2", stats.TempFiles)
	}
	if stats.Runs != 3 {
		t.Errorf("Runs = %d, want 3", stats.Runs)
	}
	if fs.cleanDirsCalled != 1 {
		t.Errorf("CleanEmptyDirs called %d times, want 1", fs.cleanDirsCalled)
	}
	if history.pruneAge != 48*time.Hour {
		t.Errorf("PruneRuns age = %v, want %v", history.pruneAge, 48*time.Hour)
	}
}

func TestService_RunOnceContinuesAfterError(t *testing.T) {
	fsErr := errors.New("permission denied")
	fs := &mockFileSystem{cleanTempFilesErr: fsErr}
	history := &mockRunHistory{pruneCount: 1}

	s := New(nil, fs, history, zap.NewNop())
	stats, err := s.RunOnce(context.Background())

	if !errors.Is(err, fsErr) {
		t.Fatalf("RunOnce() error = %v, want %v", err, fsErr)
	}
	if history.calls() != 1 {
		t.Error("PruneRuns was not called after the temp file failure")
	}
	if stats.Runs != 1 {
		t.Errorf("Runs = %d, want 1", stats.Runs)
	}
}

func TestService_RunOnceWithoutHistory(t *testing.T) {
	s := New(nil, &mockFileSystem{}, nil, zap.NewNop())
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
}

func TestService_RunOnceRemovesStalePartials(t *testing.T) {
	root := t.TempDir()
	fs, err := filesystem.NewManager(root)
	if err != nil {
		t.Fatal(err)
	}

	stale := fs.PartialPath("mods/old.7z")
	if err := os.MkdirAll(filepath.Dir(stale), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	s := New(&Config{TempFileMaxAge: 24 * time.Hour}, fs, nil, zap.NewNop())
	stats, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if stats.TempFiles != 1 {
		t.Errorf("TempFiles = %d, want 1", stats.TempFiles)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale partial file still exists")
	}
	if _, err := os.Stat(filepath.Join(root, "mods")); !os.IsNotExist(err) {
		t.Error("empty directory was not removed")
	}
}

func TestService_StartStop(t *testing.T) {
	fs := &mockFileSystem{}
	history := &mockRunHistory{}

	s := New(&Config{CleanupInterval: 10 * time.Millisecond}, fs, history, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()

	// Wait for maintenance to run at least once
	deadline := time.Now().Add(time.Second)
	for fs.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	if fs.calls() == 0 {
		t.Error("CleanOldTempFiles was not called")
	}
	if history.calls() == 0 {
		t.Error("PruneRuns was not called")
	}
}

func TestService_DoubleStart(t *testing.T) {
	s := New(nil, &mockFileSystem{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		s.Start(ctx)
	}()
	<-started

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if running || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Start(ctx); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}
