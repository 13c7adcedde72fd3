package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port/mocks"
)

func TestGameFileBackend_Copies(t *testing.T) {
	ctrl := gomock.NewController(t)
	games := mocks.NewMockGameLocator(ctrl)

	gameDir := t.TempDir()
	data := testData(3000)
	require.NoError(t, os.MkdirAll(filepath.Join(gameDir, "Data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "Data", "Skyrim.esm"), data, 0644))
	games.EXPECT().GameDir("SkyrimSpecialEdition").Return(gameDir, nil)

	fs := newTestFS(t)
	b := NewGameFileBackend(games, fs, nil)
	req := &domain.DownloadRequest{
		ID:          "g",
		Source:      domain.GameFileSource{Game: "SkyrimSpecialEdition", RelativePath: `Data\Skyrim.esm`},
		Destination: "Skyrim.esm",
	}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGameFileBackend_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		dirErr   error
		category domain.Category
	}{
		{"missing game", "a.esm", domain.ErrGameNotFound, domain.CategoryNotFound},
		{"missing file", "nope.esm", nil, domain.CategoryNotFound},
		{"escapes game dir", "../../etc/passwd", nil, domain.CategoryUnsupported},
		{"locator io error", "a.esm", errors.New("permission denied"), domain.CategoryLocalIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			games := mocks.NewMockGameLocator(ctrl)
			games.EXPECT().GameDir("Game").Return(t.TempDir(), tt.dirErr)

			fs := newTestFS(t)
			b := NewGameFileBackend(games, fs, nil)
			req := &domain.DownloadRequest{ID: "g", Source: domain.GameFileSource{Game: "Game", RelativePath: tt.path}, Destination: "out"}

			_, err := b.Fetch(context.Background(), req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.category, domain.Classify(err))
			assert.False(t, domain.IsRetryable(err))
			assert.False(t, fs.FileExists(fs.PartialPath("out")))
		})
	}
}

func TestNexusBackend_ResolvesThenDownloads(t *testing.T) {
	srv := &rangeServer{data: testData(5000)}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockNexusResolver(ctrl)
	resolver.EXPECT().
		ResolveDownloadURL(gomock.Any(), "skyrimspecialedition", int64(266), int64(1000)).
		Return(ts.URL+"/signed?expires=1", nil)

	fs := newTestFS(t)
	b := NewNexusBackend(resolver, NewHTTPBackend(newTestClient(), fs, true, nil), nil)
	req := &domain.DownloadRequest{
		ID:          "n",
		Source:      domain.NexusSource{GameDomain: "skyrimspecialedition", ModID: 266, FileID: 1000},
		Destination: "skse.7z",
	}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, srv.data, got)
}

func TestNexusBackend_AuthorizationIsTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockNexusResolver(ctrl)
	resolver.EXPECT().
		ResolveDownloadURL(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", domain.NewDownloadError(domain.CategoryAuthorization, "nexus", domain.ErrUnauthorized))

	b := NewNexusBackend(resolver, NewHTTPBackend(newTestClient(), newTestFS(t), true, nil), nil)
	req := &domain.DownloadRequest{ID: "n", Source: domain.NexusSource{GameDomain: "x", ModID: 1, FileID: 2}, Destination: "x"}

	_, err := b.Fetch(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryAuthorization, domain.Classify(err))
	assert.False(t, domain.IsRetryable(err))
}

func TestNexusBackend_NoResolver(t *testing.T) {
	b := NewNexusBackend(nil, NewHTTPBackend(newTestClient(), newTestFS(t), true, nil), nil)
	req := &domain.DownloadRequest{ID: "n", Source: domain.NexusSource{GameDomain: "x", ModID: 1, FileID: 2}, Destination: "x"}

	_, err := b.Fetch(context.Background(), req, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestArchiveBackend_Extracts(t *testing.T) {
	ctrl := gomock.NewController(t)
	extractor := mocks.NewMockArchiveExtractor(ctrl)
	data := testData(70_000)
	extractor.EXPECT().
		Extract(gomock.Any(), "hashA", "textures/a.dds", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, w io.Writer) (int64, error) {
			n, err := w.Write(data)
			return int64(n), err
		})

	b := NewArchiveBackend(extractor, newTestFS(t), nil)
	req := &domain.DownloadRequest{ID: "a", Source: domain.ArchiveSource{ArchiveHash: "hashA", InnerPath: "textures/a.dds"}, Destination: "a.dds"}

	res, err := b.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), res.BytesWritten)

	got, err := os.ReadFile(res.PartialPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestArchiveBackend_ArchiveNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	extractor := mocks.NewMockArchiveExtractor(ctrl)
	extractor.EXPECT().
		Extract(gomock.Any(), "missing", "a.txt", gomock.Any()).
		Return(int64(0), domain.ErrArchiveNotFound)

	b := NewArchiveBackend(extractor, newTestFS(t), nil)
	req := &domain.DownloadRequest{ID: "a", Source: domain.ArchiveSource{ArchiveHash: "missing", InnerPath: "a.txt"}, Destination: "a.txt"}

	_, err := b.Fetch(context.Background(), req, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrArchiveNotFound)
	assert.Equal(t, domain.CategoryNotFound, domain.Classify(err))
}

func TestSkipBackends(t *testing.T) {
	fs := newTestFS(t)
	reg := NewRegistry(Deps{FS: fs, Config: domain.DefaultDownloadConfig()})

	tests := []struct {
		name   string
		source domain.Source
		want   string
	}{
		{"manual with instructions", domain.ManualSource{Instructions: "Download from the author's site", URL: "https://example.com"}, "Download from the author's site"},
		{"manual url only", domain.ManualSource{URL: "https://example.com/f"}, "Manual download required: https://example.com/f"},
		{"unknown bare", domain.UnknownSource{SourceType: "MegaDownloader"}, "Unknown download type: 'MegaDownloader'"},
		{"unknown with archive", domain.UnknownSource{SourceType: "X", ArchiveName: "a.7z"}, "Unknown download type: 'X' (Archive: 'a.7z')"},
		{
			"unknown with meta",
			domain.UnknownSource{SourceType: "X", ArchiveName: "a.7z", Meta: "[General]\n\ndirectURL=https://x\nhash=1\nextra=2\n"},
			"Unknown download type: 'X' (Archive: 'a.7z') [Meta: [General], directURL=https://x, hash=1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &domain.DownloadRequest{ID: tt.name, Source: tt.source, Destination: "skip.bin"}

			res, err := reg.Fetch(context.Background(), req, nil)
			assert.Nil(t, res)
			require.True(t, domain.IsSkippable(err))
			assert.Equal(t, tt.want, domain.SkipReason(err))
			assert.False(t, fs.FileExists(fs.PartialPath("skip.bin")))
			assert.False(t, fs.FileExists(fs.ResolvePath("skip.bin")))
		})
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	reg := NewRegistry(Deps{FS: newTestFS(t), Config: domain.DefaultDownloadConfig()})

	tests := []struct {
		source domain.Source
		want   any
	}{
		{domain.HTTPSource{}, reg.HTTP},
		{domain.WabbajackCDNSource{}, reg.CDN},
		{domain.GameFileSource{}, reg.GameFile},
		{domain.NexusSource{}, reg.Nexus},
		{domain.ManualSource{}, reg.Manual},
		{domain.ArchiveSource{}, reg.Archive},
		{domain.UnknownSource{}, reg.Unknown},
	}
	for _, tt := range tests {
		got, err := reg.Backend(tt.source)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "source %T", tt.source)
	}

	_, err := reg.Backend(nil)
	assert.Equal(t, domain.CategoryUnsupported, domain.Classify(err))
}
