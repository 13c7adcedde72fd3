package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common domain errors
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid download request")
	ErrInsufficientSpace   = errors.New("insufficient space")
	ErrUnsupportedURL      = errors.New("unsupported url")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrRangeMismatch       = errors.New("server resumed at a different offset")

	// Source errors
	ErrArchiveNotFound = errors.New("archive not found")
	ErrGameNotFound    = errors.New("game installation not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")

	// Retry errors
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// Validation errors
	ErrValidationFailed      = errors.New("validation failed")
	ErrChunkValidationFailed = errors.New("chunk validation failed")
)

// Category classifies a download failure. Classification happens once, where
// a backend hands its error to the retry engine.
type Category string

const (
	CategoryTransport         Category = "transport"
	CategoryRateLimited       Category = "rate_limited"
	CategoryIntegrity         Category = "integrity"
	CategoryChunkIntegrity    Category = "chunk_integrity"
	CategoryAuthorization     Category = "authorization"
	CategoryUnsupported       Category = "unsupported"
	CategoryInvalidRequest    Category = "invalid_request"
	CategoryNotFound          Category = "not_found"
	CategoryLocalIO           Category = "local_io"
	CategoryInsufficientSpace Category = "insufficient_space"
	CategoryExhausted         Category = "exhausted"
	CategoryCancelled         Category = "cancelled"
)

// Recoverable reports whether a failure of this category may be retried.
func (c Category) Recoverable() bool {
	return c == CategoryTransport || c == CategoryRateLimited
}

// Suggestion returns a short hint on resolving failures of this category,
// or "" when there is nothing the user can do.
func (c Category) Suggestion() string {
	switch c {
	case CategoryTransport:
		return "check your internet connection or raise the timeout"
	case CategoryRateLimited:
		return "wait for the rate limit to reset and run again"
	case CategoryIntegrity, CategoryChunkIntegrity:
		return "the source may have changed; check the expected hashes"
	case CategoryAuthorization:
		return "check your Nexus API key"
	case CategoryUnsupported:
		return "use an http or https URL"
	case CategoryInvalidRequest:
		return "fix the request entry; every request needs a source and a unique destination"
	case CategoryNotFound:
		return "check the game install path or that the parent archive was downloaded"
	case CategoryLocalIO:
		return "check permissions on the downloads directory"
	case CategoryInsufficientSpace:
		return "free up disk space or choose a different download location"
	case CategoryExhausted:
		return "run again to resume, or raise max_retries"
	}
	return ""
}

// DownloadError is a classified download failure.
type DownloadError struct {
	Category Category
	Op       string
	URL      string
	Err      error
}

// Error returns the error message
func (e *DownloadError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Category))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a classified error
func NewDownloadError(category Category, op string, err error) *DownloadError {
	return &DownloadError{Category: category, Op: op, Err: err}
}

// SkippableError represents a request that resolves to Skipped instead of
// Failed. The context carries the user-facing reason.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}

// SkipReason returns the reason carried by a skippable error.
func SkipReason(err error) string {
	var se *SkippableError
	if errors.As(err, &se) {
		return se.Error()
	}
	return ""
}

// RetryableError carries a server-suggested delay before the next attempt.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	return Classify(err).Recoverable()
}

// GetRetryAfter returns the server-suggested delay, if any
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return re.RetryAfter, true
	}
	return 0, false
}

// ValidationError reports every algorithm whose digest did not match.
type ValidationError struct {
	Path     string
	Outcomes []ValidationOutcome
}

// Error returns the error message
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		if o.Matched {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s expected %s, got %s", o.Algorithm, o.Expected, o.Computed))
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidationFailed, e.Path, strings.Join(parts, "; "))
}

// Unwrap returns ErrValidationFailed
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	var de *DownloadError
	if errors.As(err, &de) {
		return de.Category
	}

	switch {
	case IsSkippable(err):
		return CategoryUnsupported
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransport
	case errors.Is(err, ErrMaxRetriesExceeded):
		return CategoryExhausted
	case errors.Is(err, ErrChunkValidationFailed):
		return CategoryChunkIntegrity
	case errors.Is(err, ErrValidationFailed):
		return CategoryIntegrity
	case errors.Is(err, ErrUnauthorized):
		return CategoryAuthorization
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrInvalidRequest):
		return CategoryInvalidRequest
	case errors.Is(err, ErrUnsupportedURL):
		return CategoryUnsupported
	case errors.Is(err, ErrArchiveNotFound), errors.Is(err, ErrGameNotFound), errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInsufficientSpace):
		return CategoryInsufficientSpace
	}

	var re *RetryableError
	if errors.As(err, &re) {
		return CategoryRateLimited
	}

	return CategoryTransport
}
