package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSkippableError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		context string
		want    string
	}{
		{
			name:    "with context and error",
			err:     errors.New("underlying error"),
			context: "manual download",
			want:    "manual download: underlying error",
		},
		{
			name:    "with context only",
			err:     nil,
			context: "Unknown download type: 'Foo'",
			want:    "Unknown download type: 'Foo'",
		},
		{
			name:    "with error only",
			err:     errors.New("underlying error"),
			context: "",
			want:    "underlying error",
		},
		{
			name:    "empty",
			err:     nil,
			context: "",
			want:    "skippable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewSkippableError(tt.err, tt.context)
			if got := se.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkipReason(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewSkippableError(nil, "place the file manually"))
	if got := SkipReason(err); got != "place the file manually" {
		t.Errorf("SkipReason() = %v, want %v", got, "place the file manually")
	}
	if got := SkipReason(errors.New("boom")); got != "" {
		t.Errorf("SkipReason() = %v, want empty", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"download error", NewDownloadError(CategoryAuthorization, "resolve", ErrUnauthorized), CategoryAuthorization},
		{"wrapped download error", fmt.Errorf("x: %w", NewDownloadError(CategoryLocalIO, "copy", errors.New("eio"))), CategoryLocalIO},
		{"skippable", NewSkippableError(nil, "manual"), CategoryUnsupported},
		{"cancelled", fmt.Errorf("get: %w", context.Canceled), CategoryCancelled},
		{"deadline", context.DeadlineExceeded, CategoryTransport},
		{"exhausted", fmt.Errorf("%w: 3 attempts", ErrMaxRetriesExceeded), CategoryExhausted},
		{"validation", &ValidationError{Path: "a"}, CategoryIntegrity},
		{"chunk validation", fmt.Errorf("part 2: %w", ErrChunkValidationFailed), CategoryChunkIntegrity},
		{"archive not found", ErrArchiveNotFound, CategoryNotFound},
		{"invalid request", fmt.Errorf("%w: destination is required", ErrInvalidRequest), CategoryInvalidRequest},
		{"retry after", NewRetryableError(errors.New("slow down"), time.Second), CategoryRateLimited},
		{"plain io error", errors.New("connection reset by peer"), CategoryTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("err"), time.Second),
			want: true,
		},
		{
			name: "transport error",
			err:  NewDownloadError(CategoryTransport, "get", errors.New("eof")),
			want: true,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "skippable error is not retryable",
			err:  NewSkippableError(errors.New("err"), "context"),
			want: false,
		},
		{
			name: "integrity error is not retryable",
			err:  &ValidationError{Path: "x"},
			want: false,
		},
		{
			name: "authorization is not retryable",
			err:  NewDownloadError(CategoryAuthorization, "resolve", ErrUnauthorized),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOk       bool
	}{
		{
			name:         "retryable error",
			err:          NewRetryableError(errors.New("err"), 5*time.Minute),
			wantDuration: 5 * time.Minute,
			wantOk:       true,
		},
		{
			name: "inside download error",
			err: &DownloadError{
				Category: CategoryRateLimited,
				Err:      NewRetryableError(ErrRateLimited, 30*time.Second),
			},
			wantDuration: 30 * time.Second,
			wantOk:       true,
		},
		{
			name:         "zero delay",
			err:          NewRetryableError(errors.New("err"), 0),
			wantDuration: 0,
			wantOk:       false,
		},
		{
			name:         "regular error",
			err:          errors.New("regular error"),
			wantDuration: 0,
			wantOk:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, ok := GetRetryAfter(tt.err)
			if duration != tt.wantDuration || ok != tt.wantOk {
				t.Errorf("GetRetryAfter() = (%v, %v), want (%v, %v)",
					duration, ok, tt.wantDuration, tt.wantOk)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Path: "a.7z",
		Outcomes: []ValidationOutcome{
			{Algorithm: AlgorithmSize, Expected: "10", Computed: "10", Matched: true},
			{Algorithm: AlgorithmXXHash64, Expected: "abc=", Computed: "def=", Matched: false},
		},
	}

	msg := err.Error()
	if !strings.Contains(msg, "xxhash64 expected abc=, got def=") {
		t.Errorf("Error() = %v, want mismatch details", msg)
	}
	if strings.Contains(msg, "size expected") {
		t.Errorf("Error() = %v, should not list matching algorithms", msg)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Error("ValidationError should unwrap to ErrValidationFailed")
	}
}

func TestCategory_Recoverable(t *testing.T) {
	recoverable := map[Category]bool{
		CategoryTransport:   true,
		CategoryRateLimited: true,
	}
	all := []Category{
		CategoryTransport, CategoryRateLimited, CategoryIntegrity, CategoryChunkIntegrity,
		CategoryAuthorization, CategoryUnsupported, CategoryInvalidRequest, CategoryNotFound, CategoryLocalIO,
		CategoryInsufficientSpace, CategoryExhausted, CategoryCancelled,
	}
	for _, c := range all {
		if got := c.Recoverable(); got != recoverable[c] {
			t.Errorf("%s.Recoverable() = %v, want %v", c, got, recoverable[c])
		}
	}
}

func TestCategory_Suggestion(t *testing.T) {
	tests := []struct {
		category Category
		contains string
	}{
		{CategoryAuthorization, "Nexus API key"},
		{CategoryInsufficientSpace, "free up disk space"},
		{CategoryTransport, "timeout"},
		{CategoryInvalidRequest, "unique destination"},
		{CategoryExhausted, "resume"},
	}
	for _, tt := range tests {
		if got := tt.category.Suggestion(); !strings.Contains(got, tt.contains) {
			t.Errorf("%s.Suggestion() = %q, want it to contain %q", tt.category, got, tt.contains)
		}
	}
	if got := CategoryCancelled.Suggestion(); got != "" {
		t.Errorf("cancelled.Suggestion() = %q, want empty", got)
	}
}
