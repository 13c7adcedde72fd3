package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// metaLines is how many metadata lines an unknown-source reason quotes
const metaLines = 3

// ManualBackend never transfers anything; the user places the file
type ManualBackend struct{}

var _ port.Backend = ManualBackend{}

// Fetch always returns a skippable error carrying the instructions
func (ManualBackend) Fetch(_ context.Context, req *domain.DownloadRequest, _ port.ProgressReporter) (*domain.FetchResult, error) {
	src, _ := req.Source.(domain.ManualSource)
	return nil, domain.NewSkippableError(nil, ManualReason(src))
}

// ManualReason is the skip reason of a manual source
func ManualReason(src domain.ManualSource) string {
	if instructions := strings.TrimSpace(src.Instructions); instructions != "" {
		return instructions
	}
	if src.URL != "" {
		return fmt.Sprintf("Manual download required: %s", src.URL)
	}
	return "Manual download required"
}

// UnknownBackend skips manifest entries of an unrecognised type
type UnknownBackend struct{}

var _ port.Backend = UnknownBackend{}

// Fetch always returns a skippable error describing the entry
func (UnknownBackend) Fetch(_ context.Context, req *domain.DownloadRequest, _ port.ProgressReporter) (*domain.FetchResult, error) {
	src, _ := req.Source.(domain.UnknownSource)
	return nil, domain.NewSkippableError(nil, UnknownReason(src))
}

// UnknownReason formats the skip reason of an unknown source
func UnknownReason(src domain.UnknownSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unknown download type: '%s'", src.SourceType)
	if src.ArchiveName != "" {
		fmt.Fprintf(&b, " (Archive: '%s')", src.ArchiveName)
	}
	if src.Meta != "" {
		lines := make([]string, 0, metaLines)
		for _, line := range strings.Split(src.Meta, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines = append(lines, line)
			if len(lines) == metaLines {
				break
			}
		}
		if len(lines) > 0 {
			fmt.Fprintf(&b, " [Meta: %s]", strings.Join(lines, ", "))
		}
	}
	return b.String()
}
