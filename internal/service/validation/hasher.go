package validation

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// NewHash returns a fresh hash for a content algorithm. Size is not a
// content hash and is rejected.
func NewHash(alg domain.Algorithm) (hash.Hash, error) {
	switch alg {
	case domain.AlgorithmXXHash64:
		return xxhash.New(), nil
	case domain.AlgorithmCRC32:
		return crc32.NewIEEE(), nil
	case domain.AlgorithmMD5:
		return md5.New(), nil
	case domain.AlgorithmSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("no content hash for algorithm %q", alg)
	}
}

// Encode renders a finished hash the way manifests spell it. xxHash64 uses
// the Wabbajack form: base64 of the little-endian 64-bit value.
func Encode(alg domain.Algorithm, h hash.Hash) string {
	if alg == domain.AlgorithmXXHash64 {
		if h64, ok := h.(hash.Hash64); ok {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], h64.Sum64())
			return base64.StdEncoding.EncodeToString(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashBytes digests data with alg
func HashBytes(alg domain.Algorithm, data []byte) (string, error) {
	h, err := NewHash(alg)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return Encode(alg, h), nil
}

// WabbajackHash returns the xxHash64 digest of data in Wabbajack form
func WabbajackHash(data []byte) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], xxhash.Sum64(data))
	return base64.StdEncoding.EncodeToString(buf[:])
}

// Equal compares two digests of the same algorithm. Hex digests compare
// case-insensitively, base64 digests exactly.
func Equal(alg domain.Algorithm, a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if alg == domain.AlgorithmXXHash64 {
		return a == b
	}
	return strings.EqualFold(a, b)
}
