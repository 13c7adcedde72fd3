package domain

import (
	"fmt"
)

// ExpectedDigest is one digest a downloaded file must match.
type ExpectedDigest struct {
	Algorithm Algorithm
	Value     string
}

// DownloadRequest is one archive to fetch. It is not modified after it has
// been submitted to a batch.
type DownloadRequest struct {
	ID           string
	Source       Source
	Destination  string
	ExpectedSize int64 // 0 when unknown
	Expected     []ExpectedDigest
	Priority     int
}

// Validate checks the request is well formed
func (r *DownloadRequest) Validate() error {
	if r.Source == nil {
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	if r.Destination == "" && WritesFiles(r.Source) {
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	if r.ExpectedSize < 0 {
		return fmt.Errorf("%w: expected size must not be negative", ErrInvalidRequest)
	}
	for _, e := range r.Expected {
		if _, err := ParseAlgorithm(string(e.Algorithm)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if e.Value == "" {
			return fmt.Errorf("%w: empty %s digest", ErrInvalidRequest, e.Algorithm)
		}
	}
	return nil
}

// ExpectedValue returns the expected digest for an algorithm, if any.
// The size algorithm is answered from ExpectedSize.
func (r *DownloadRequest) ExpectedValue(alg Algorithm) (string, bool) {
	if alg == AlgorithmSize {
		if r.ExpectedSize > 0 {
			return fmt.Sprintf("%d", r.ExpectedSize), true
		}
	}
	for _, e := range r.Expected {
		if e.Algorithm == alg {
			return e.Value, true
		}
	}
	return "", false
}

// HasExpectations reports whether the request carries anything to verify.
func (r *DownloadRequest) HasExpectations() bool {
	return r.ExpectedSize > 0 || len(r.Expected) > 0
}
