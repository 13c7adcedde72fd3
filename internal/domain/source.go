package domain

// SourceKind names a source variant
type SourceKind string

const (
	SourceHTTP         SourceKind = "http"
	SourceWabbajackCDN SourceKind = "wabbajack_cdn"
	SourceGameFile     SourceKind = "game_file"
	SourceNexus        SourceKind = "nexus"
	SourceManual       SourceKind = "manual"
	SourceArchive      SourceKind = "archive"
	SourceUnknown      SourceKind = "unknown"
)

// Source describes where the bytes of a request come from. The set of
// variants is closed: only types in this package implement it.
type Source interface {
	Kind() SourceKind
	source()
}

// HTTPSource is a direct, range-capable URL.
type HTTPSource struct {
	URL     string
	Headers map[string]string
}

// CDNChunk is one independently hashed segment of a chunked CDN file.
type CDNChunk struct {
	Index  int
	URL    string
	Hash   string
	Size   int64
	Offset int64
}

// WabbajackCDNSource is a file split into chunks on the Wabbajack CDN.
// When Chunks is empty the chunk list is read from the definition file
// published next to ManifestURL.
type WabbajackCDNSource struct {
	ManifestURL string
	Chunks      []CDNChunk
}

// GameFileSource copies a file out of an installed game directory.
type GameFileSource struct {
	Game         string
	RelativePath string
}

// NexusSource is a Nexus Mods file resolved to a signed URL at fetch time.
type NexusSource struct {
	GameDomain string
	ModID      int64
	FileID     int64
}

// ManualSource must be placed by the user.
type ManualSource struct {
	Instructions string
	URL          string
}

// ArchiveSource is extracted from an already downloaded parent archive.
type ArchiveSource struct {
	ArchiveHash string
	InnerPath   string
}

// UnknownSource is a manifest entry whose type is not recognised.
type UnknownSource struct {
	SourceType  string
	ArchiveName string
	Meta        string
}

func (HTTPSource) Kind() SourceKind         { return SourceHTTP }
func (WabbajackCDNSource) Kind() SourceKind { return SourceWabbajackCDN }
func (GameFileSource) Kind() SourceKind     { return SourceGameFile }
func (NexusSource) Kind() SourceKind        { return SourceNexus }
func (ManualSource) Kind() SourceKind       { return SourceManual }
func (ArchiveSource) Kind() SourceKind      { return SourceArchive }
func (UnknownSource) Kind() SourceKind      { return SourceUnknown }

func (HTTPSource) source()         {}
func (WabbajackCDNSource) source() {}
func (GameFileSource) source()     {}
func (NexusSource) source()        {}
func (ManualSource) source()       {}
func (ArchiveSource) source()      {}
func (UnknownSource) source()      {}

// WritesFiles reports whether fetching this source can write to disk.
func WritesFiles(s Source) bool {
	switch s.(type) {
	case ManualSource, UnknownSource, nil:
		return false
	default:
		return true
	}
}
