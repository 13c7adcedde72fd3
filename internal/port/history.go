package port

import (
	"time"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// RunHistory is the caller-side ledger of batch runs. The download pipeline
// itself never reads it.
type RunHistory interface {
	RecordRun(run *RunRecord) error
	RecordResult(runID string, result domain.DownloadResult) error
	FinishRun(run *RunRecord) error
	ListRuns(limit int) ([]*RunRecord, error)
	CompletedArchives() ([]ArchiveRecord, error)
	PruneRuns(olderThan time.Duration) (int, error)
}
