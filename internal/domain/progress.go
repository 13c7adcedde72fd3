package domain

import "time"

// ProgressEvent reports bytes written for one request. BytesDone never
// decreases for a given request.
type ProgressEvent struct {
	RequestID  string
	BytesDone  int64
	BytesTotal int64   // 0 when unknown
	Rate       float64 // bytes per second
}

// Fraction returns completion in [0,1], or -1 when the total is unknown.
func (e ProgressEvent) Fraction() float64 {
	if e.BytesTotal <= 0 {
		return -1
	}
	f := float64(e.BytesDone) / float64(e.BytesTotal)
	if f > 1 {
		return 1
	}
	return f
}

// Stage is a step in the life of one request, reported alongside byte
// progress.
type Stage string

const (
	StageDownloadStarted     Stage = "download_started"
	StageDownloadCompleted   Stage = "download_completed"
	StageRetrying            Stage = "retrying"
	StageValidationStarted   Stage = "validation_started"
	StageValidationCompleted Stage = "validation_completed"
	StageFailed              Stage = "failed"
)

// LifecycleEvent marks a stage transition of one request. Only the fields
// relevant to the stage are set.
type LifecycleEvent struct {
	RequestID string
	Stage     Stage

	Size       int64         // bytes expected or written
	Attempt    int           // attempt that just failed, for StageRetrying
	MaxRetries int           // retry budget, for StageRetrying
	Wait       time.Duration // delay before the next attempt
	Valid      bool          // for StageValidationCompleted
	Err        error
}
