// Package integrity computes and verifies file digests.
//
// A [Spec] pairs an [Algorithm] with the expected lowercase hex digest.
// Specs are usually written in the OCI "algorithm:encoded" form and
// parsed with [Parse]:
//
//	spec, err := integrity.Parse("sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08")
//	err = integrity.VerifyFile(path, spec) // *MismatchError on disagreement
//
// The sha2 family is computed through github.com/opencontainers/go-digest;
// the remaining algorithms use crypto/md5, crypto/sha1, golang.org/x/crypto
// and lukechampine.com/blake3.
package integrity
