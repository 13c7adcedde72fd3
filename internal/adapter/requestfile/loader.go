// Package requestfile reads download request lists from YAML.
//
// A file is either a list of requests or a mapping with a "requests" key:
//
//	requests:
//	  - destination: SkyUI_5_2_SE.7z
//	    size: 2863218
//	    hashes: {xxhash64: "dGhpcyBpcyA="}
//	    priority: high
//	    source:
//	      type: nexus
//	      game_domain: skyrimspecialedition
//	      mod_id: 12604
//	      file_id: 35407
package requestfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// ErrEmpty is returned for a file without requests
var ErrEmpty = errors.New("request file lists no requests")

type document struct {
	Requests []entry `yaml:"requests"`
}

type entry struct {
	ID          string            `yaml:"id"`
	Destination string            `yaml:"destination"`
	Size        int64             `yaml:"size"`
	Hashes      map[string]string `yaml:"hashes"`
	Priority    priority          `yaml:"priority"`
	Source      source            `yaml:"source"`
}

type source struct {
	Type string `yaml:"type"`

	// http, manual
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// wabbajack_cdn
	ManifestURL string  `yaml:"manifest_url"`
	Chunks      []chunk `yaml:"chunks"`

	// game_file
	Game         string `yaml:"game"`
	RelativePath string `yaml:"relative_path"`

	// nexus
	GameDomain string `yaml:"game_domain"`
	ModID      int64  `yaml:"mod_id"`
	FileID     int64  `yaml:"file_id"`

	// manual
	Instructions string `yaml:"instructions"`

	// archive
	ArchiveHash string `yaml:"archive_hash"`
	InnerPath   string `yaml:"inner_path"`

	// unknown
	ArchiveName string `yaml:"archive_name"`
	Meta        string `yaml:"meta"`
}

type chunk struct {
	Index  int    `yaml:"index"`
	URL    string `yaml:"url"`
	Hash   string `yaml:"hash"`
	Size   int64  `yaml:"size"`
	Offset int64  `yaml:"offset"`
}

// priority accepts a number or a level name
type priority int

func (p *priority) UnmarshalYAML(node *yaml.Node) error {
	value := strings.ToLower(strings.TrimSpace(node.Value))
	if n, err := strconv.Atoi(value); err == nil {
		*p = priority(n)
		return nil
	}
	for level := domain.PriorityCritical; level <= domain.PriorityLow; level++ {
		if domain.PriorityName(level) == value {
			*p = priority(level)
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown priority %q", node.Line, node.Value)
}

// LoadFile reads requests from a YAML file
func LoadFile(path string) ([]*domain.DownloadRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads requests from YAML. Requests without an ID get a generated one.
func Load(r io.Reader) ([]*domain.DownloadRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	entries, err := decode(data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	out := make([]*domain.DownloadRequest, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		req, err := e.toRequest()
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
		if seen[req.ID] {
			return nil, fmt.Errorf("request %d: %w: duplicate id %q", i+1, domain.ErrInvalidRequest, req.ID)
		}
		seen[req.ID] = true
		out = append(out, req)
	}
	return out, nil
}

func decode(data []byte) ([]entry, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}

	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	if doc.Kind == yaml.SequenceNode {
		var entries []entry
		if err := doc.Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to parse request file: %w", err)
		}
		return entries, nil
	}

	var d document
	if err := doc.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}
	return d.Requests, nil
}

func (e entry) toRequest() (*domain.DownloadRequest, error) {
	req := &domain.DownloadRequest{
		ID:           e.ID,
		Source:       e.Source.toSource(),
		Destination:  e.Destination,
		ExpectedSize: e.Size,
		Priority:     domain.NormalizePriority(int(e.Priority)),
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	algs := make([]string, 0, len(e.Hashes))
	for alg := range e.Hashes {
		algs = append(algs, alg)
	}
	sort.Strings(algs)
	for _, name := range algs {
		alg, err := domain.ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		if alg == domain.AlgorithmSize {
			size, err := strconv.ParseInt(e.Hashes[name], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: size %q", domain.ErrInvalidRequest, e.Hashes[name])
			}
			req.ExpectedSize = size
			continue
		}
		req.Expected = append(req.Expected, domain.ExpectedDigest{Algorithm: alg, Value: e.Hashes[name]})
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (s source) toSource() domain.Source {
	switch domain.SourceKind(strings.ToLower(s.Type)) {
	case domain.SourceHTTP:
		return domain.HTTPSource{URL: s.URL, Headers: s.Headers}
	case domain.SourceWabbajackCDN:
		chunks := make([]domain.CDNChunk, 0, len(s.Chunks))
		for _, c := range s.Chunks {
			chunks = append(chunks, domain.CDNChunk(c))
		}
		return domain.WabbajackCDNSource{ManifestURL: s.ManifestURL, Chunks: chunks}
	case domain.SourceGameFile:
		return domain.GameFileSource{Game: s.Game, RelativePath: s.RelativePath}
	case domain.SourceNexus:
		return domain.NexusSource{GameDomain: s.GameDomain, ModID: s.ModID, FileID: s.FileID}
	case domain.SourceManual:
		return domain.ManualSource{Instructions: s.Instructions, URL: s.URL}
	case domain.SourceArchive:
		return domain.ArchiveSource{ArchiveHash: s.ArchiveHash, InnerPath: s.InnerPath}
	default:
		return domain.UnknownSource{SourceType: s.Type, ArchiveName: s.ArchiveName, Meta: s.Meta}
	}
}
