package domain

import (
	"fmt"
	"strings"
)

// Algorithm names a digest used for validation
type Algorithm string

const (
	AlgorithmSize     Algorithm = "size"
	AlgorithmXXHash64 Algorithm = "xxhash64"
	AlgorithmCRC32    Algorithm = "crc32"
	AlgorithmMD5      Algorithm = "md5"
	AlgorithmSHA256   Algorithm = "sha256"
)

// Algorithms lists every supported algorithm
var Algorithms = []Algorithm{AlgorithmSize, AlgorithmXXHash64, AlgorithmCRC32, AlgorithmMD5, AlgorithmSHA256}

// ParseAlgorithm parses an algorithm name
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown hash algorithm: %q", s)
}

// ValidationOutcome is the result of checking one algorithm
type ValidationOutcome struct {
	Algorithm Algorithm
	Expected  string
	Computed  string
	Matched   bool
}
