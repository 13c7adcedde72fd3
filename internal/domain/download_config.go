package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ErrInvalidConfig is returned when download tunables are inconsistent
var ErrInvalidConfig = errors.New("invalid download config")

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("name"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// DownloadConfig holds the tuning parameters of the download pipeline.
// Build it with NewDownloadConfig; a value that passed construction is
// treated as read-only.
type DownloadConfig struct {
	MaxRetries         int           `name:"max_retries" validate:"gte=0,lte=100"`
	BaseBackoff        time.Duration `name:"base_backoff" validate:"gt=0"`
	BackoffMultiplier  float64       `name:"backoff_multiplier" validate:"gte=1"`
	MaxBackoff         time.Duration `name:"max_backoff" validate:"gtefield=BaseBackoff"`
	Jitter             float64       `name:"jitter" validate:"gte=0,lte=1"`
	ConcurrencyLimit   int           `name:"concurrency_limit" validate:"gte=1,lte=256"`
	ValidationWorkers  int           `name:"validation_workers" validate:"gte=1,lte=256"`
	ChunkConcurrency   int           `name:"chunk_concurrency" validate:"gte=1,lte=64"`
	ChunkSize          int64         `name:"chunk_size" validate:"gt=0,lte=1073741824"`
	Timeout            time.Duration `name:"timeout" validate:"gt=0"`
	ResumeEnabled      bool          `name:"resume_enabled"`
	RequiredAlgorithms []Algorithm   `name:"required_algorithms" validate:"dive,oneof=size xxhash64 crc32 md5 sha256"`
	UserAgent          string        `name:"user_agent" validate:"required"`
	MinFreeSpace       int64         `name:"min_free_space" validate:"gte=0"`
}

// DefaultDownloadConfig returns the default tunables
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		MaxRetries:         3,
		BaseBackoff:        time.Second,
		BackoffMultiplier:  2,
		MaxBackoff:         60 * time.Second,
		Jitter:             0.1,
		ConcurrencyLimit:   4,
		ValidationWorkers:  4,
		ChunkConcurrency:   4,
		ChunkSize:          16 * 1024 * 1024,
		Timeout:            30 * time.Second,
		ResumeEnabled:      true,
		RequiredAlgorithms: []Algorithm{AlgorithmSize, AlgorithmXXHash64},
		UserAgent:          "modfetch/dev",
		MinFreeSpace:       512 * 1024 * 1024,
	}
}

// NewDownloadConfig validates cfg and returns a copy that shares no
// slices with the caller.
func NewDownloadConfig(cfg DownloadConfig) (DownloadConfig, error) {
	if err := validate.Struct(cfg); err != nil {
		var verrors validator.ValidationErrors
		if !errors.As(err, &verrors) {
			return DownloadConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		fields := make(FieldErrors, 0, len(verrors))
		for _, verror := range verrors {
			fields = append(fields, FieldError{
				Field: verror.Field(),
				Err:   verror.Translate(translator),
			})
		}
		return DownloadConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, fields)
	}

	out := cfg
	out.RequiredAlgorithms = dedupeAlgorithms(cfg.RequiredAlgorithms)
	return out, nil
}

// BufferSize returns ChunkSize as the streaming read/write size
func (c DownloadConfig) BufferSize() int {
	return int(c.ChunkSize)
}

// Requires reports whether alg is among the required algorithms
func (c DownloadConfig) Requires(alg Algorithm) bool {
	for _, a := range c.RequiredAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

func dedupeAlgorithms(in []Algorithm) []Algorithm {
	seen := make(map[Algorithm]bool, len(in))
	out := make([]Algorithm, 0, len(in))
	for _, a := range in {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// FieldError is one invalid tunable.
type FieldError struct {
	Field string
	Err   string
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, f := range fe {
		parts = append(parts, f.Err)
	}
	return strings.Join(parts, "; ")
}
