package port

import (
	"context"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// Backend fetches the bytes of one request into its partial file.
// A skippable error means the request resolves to Skipped; any other error
// has already been classified with a domain.Category.
type Backend interface {
	Fetch(ctx context.Context, req *domain.DownloadRequest, reporter ProgressReporter) (*domain.FetchResult, error)
}

// ProgressReporter consumes progress events. Report must not block the
// caller beyond a bounded queue.
type ProgressReporter interface {
	Report(event domain.ProgressEvent)
}

// LifecycleReporter is implemented by reporters that also want stage
// transitions (start, retry, validation, failure). Callers detect it with a
// type assertion.
type LifecycleReporter interface {
	ReportLifecycle(event domain.LifecycleEvent)
}

// ActivityReporter is implemented by reporters that track liveness. Touch
// is called on every read, unthrottled.
type ActivityReporter interface {
	Touch()
}
