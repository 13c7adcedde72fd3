package domain

import (
	"time"
)

// ResultStatus is the terminal state of a request
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusSkipped   ResultStatus = "skipped"
	StatusFailed    ResultStatus = "failed"
)

// FetchResult is what a backend reports after writing a partial file
type FetchResult struct {
	// PartialPath is where the unvalidated bytes were written
	PartialPath string

	// BytesWritten is the size of the partial file
	BytesWritten int64

	// BytesTransferred counts bytes read from the network or source this attempt
	BytesTransferred int64

	// Resumed indicates whether the download was resumed from a previous attempt
	Resumed bool

	// ResumedFrom is the byte position from which the download was resumed
	ResumedFrom int64
}

// DownloadResult is produced exactly once per request.
type DownloadResult struct {
	RequestID string
	Status    ResultStatus
	Kind      SourceKind

	// Completed
	Path     string
	Hash     string
	Digests  map[Algorithm]string
	Size     int64
	Elapsed  time.Duration
	CacheHit bool
	Resumed  bool

	// Skipped
	Reason string

	// Failed
	Err      error
	Category Category

	Retries int
}

// Completed builds a completed result
func Completed(req *DownloadRequest, path, hash string, size int64, elapsed time.Duration) DownloadResult {
	return DownloadResult{
		RequestID: req.ID,
		Status:    StatusCompleted,
		Kind:      kindOf(req),
		Path:      path,
		Hash:      hash,
		Size:      size,
		Elapsed:   elapsed,
	}
}

// Skipped builds a skipped result
func Skipped(req *DownloadRequest, reason string) DownloadResult {
	return DownloadResult{
		RequestID: req.ID,
		Status:    StatusSkipped,
		Kind:      kindOf(req),
		Reason:    reason,
	}
}

// Failed builds a failed result
func Failed(req *DownloadRequest, err error) DownloadResult {
	return DownloadResult{
		RequestID: req.ID,
		Status:    StatusFailed,
		Kind:      kindOf(req),
		Err:       err,
		Category:  Classify(err),
	}
}

func kindOf(req *DownloadRequest) SourceKind {
	if req.Source == nil {
		return SourceUnknown
	}
	return req.Source.Kind()
}
