package integrity

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"

	// Registers the sha2 family with go-digest.
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// Algorithm identifies a digest algorithm.
type Algorithm string

// Supported algorithms.
const (
	MD5        Algorithm = "md5"
	SHA1       Algorithm = "sha1"
	SHA256     Algorithm = "sha256"
	SHA384     Algorithm = "sha384"
	SHA512     Algorithm = "sha512"
	SHA3_256   Algorithm = "sha3-256"
	SHA3_512   Algorithm = "sha3-512"
	BLAKE2b256 Algorithm = "blake2b-256"
	BLAKE2b512 Algorithm = "blake2b-512"
	BLAKE3     Algorithm = "blake3"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{MD5, SHA1, SHA256, SHA384, SHA512, SHA3_256, SHA3_512, BLAKE2b256, BLAKE2b512, BLAKE3}

var (
	ErrUnknownAlgorithm = errors.New("integrity: unknown algorithm")
	ErrInvalidDigest    = errors.New("integrity: invalid digest")
)

// Spec is the expected digest of a download.
type Spec struct {
	Algorithm Algorithm
	Expected  string
}

func (s Spec) String() string {
	return string(s.Algorithm) + ":" + s.Expected
}

// MismatchError is returned when the computed digest differs from the expected one.
type MismatchError struct {
	Path      string
	Algorithm Algorithm
	Expected  string
	Actual    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("integrity: %s digest mismatch for %s: %s != %s", e.Algorithm, e.Path, e.Expected, e.Actual)
}

// ParseAlgorithm returns the Algorithm for name. Matching ignores case.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// Parse parses a digest in "algorithm:hex" form, e.g. "sha256:9f86d0...".
func Parse(s string) (Spec, error) {
	name, encoded, ok := strings.Cut(s, ":")
	if !ok || encoded == "" {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDigest, s)
	}
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return Spec{}, err
	}
	if d, ok := ociAlgorithm(alg); ok {
		if err := digest.NewDigestFromEncoded(d, encoded).Validate(); err != nil {
			return Spec{}, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
		}
		return Spec{Algorithm: alg, Expected: encoded}, nil
	}
	if _, err := hex.DecodeString(encoded); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return Spec{Algorithm: alg, Expected: encoded}, nil
}

func ociAlgorithm(a Algorithm) (digest.Algorithm, bool) {
	switch a {
	case SHA256:
		return digest.SHA256, true
	case SHA384:
		return digest.SHA384, true
	case SHA512:
		return digest.SHA512, true
	}
	return "", false
}

func newHash(a Algorithm) (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA3_256:
		return sha3.New256(), nil
	case SHA3_512:
		return sha3.New512(), nil
	case BLAKE2b256:
		return blake2b.New256(nil)
	case BLAKE2b512:
		return blake2b.New512(nil)
	case BLAKE3:
		return blake3.New(32, nil), nil
	}
	if d, ok := ociAlgorithm(a); ok {
		return d.Hash(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, a)
}

// Digest reads r to the end and returns its lowercase hex digest.
func Digest(a Algorithm, r io.Reader) (string, error) {
	if d, ok := ociAlgorithm(a); ok {
		dg, err := d.FromReader(r)
		if err != nil {
			return "", err
		}
		return dg.Encoded(), nil
	}
	h, err := newHash(a)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the digest of the file at path.
func File(a Algorithm, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Digest(a, f)
}

// VerifyFile computes the digest of path and compares it against spec.
// The comparison is exact and case-sensitive. A disagreement is reported
// as *MismatchError; I/O failures are returned unchanged.
func VerifyFile(path string, spec Spec) error {
	actual, err := File(spec.Algorithm, path)
	if err != nil {
		return err
	}
	if actual != spec.Expected {
		return &MismatchError{
			Path:      path,
			Algorithm: spec.Algorithm,
			Expected:  spec.Expected,
			Actual:    actual,
		}
	}
	return nil
}
