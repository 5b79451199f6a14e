package hasher

import (
	"crypto/sha1"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = "sha256"

// ErrUnsupportedAlgorithm is returned for an unknown algorithm name.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

var algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"sha3-256": func() hash.Hash {
		return sha3.New256()
	},
	"sha3-512": func() hash.Hash {
		return sha3.New512()
	},
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
	"blake2b-512": func() hash.Hash {
		h, _ := blake2b.New512(nil)
		return h
	},
	"blake2s-256": func() hash.Hash {
		h, _ := blake2s.New256(nil)
		return h
	},
	"blake3": func() hash.Hash {
		return blake3.New(32, nil)
	},
}

// normalize maps user spellings (SHA256, sha-256, BLAKE3) to registry names.
func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return DefaultAlgorithm
	}
	switch n {
	case "sha-1":
		return "sha1"
	case "sha-256":
		return "sha256"
	case "sha-384":
		return "sha384"
	case "sha-512":
		return "sha512"
	case "blake2b":
		return "blake2b-512"
	case "blake2s":
		return "blake2s-256"
	}
	return n
}

// New returns a fresh digest for the named algorithm.
func New(name string) (hash.Hash, error) {
	ctor, ok := algorithms[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedAlgorithm, name, strings.Join(Supported(), ", "))
	}
	return ctor(), nil
}

// Canonical returns the registry name for name, or an error if unsupported.
func Canonical(name string) (string, error) {
	n := normalize(name)
	if _, ok := algorithms[n]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedAlgorithm, name, strings.Join(Supported(), ", "))
	}
	return n, nil
}

// Supported lists algorithm names in sorted order.
func Supported() []string {
	out := make([]string, 0, len(algorithms))
	for k := range algorithms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
