// Package lib contains the core, reusable services of the update engine:
// hashing, manifests and diffing, semver matching, rollout selection, update
// resolution, delta generation, response caching and storage access.
package lib

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// GetHash calculates the SHA-256 hash of an in-memory byte slice and returns
// it as a lowercase hex-encoded string. This is the hash used for blob
// contents, manifest entries and package hashes alike.
func GetHash(content []byte) string {
	hashBytes := sha256.Sum256(content)
	return hex.EncodeToString(hashBytes[:])
}

// GetReaderHash calculates the SHA-256 hash of a reader's contents by
// streaming it, which avoids buffering archive entries in memory.
// It returns the lowercase hex-encoded hash string.
func GetReaderHash(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// GetDeploymentKeyHash derives the cache key for a deployment from its
// public key. The key itself never appears verbatim in the cache backend.
func GetDeploymentKeyHash(deploymentKey string) string {
	return GetHash([]byte("deploymentKey:" + deploymentKey))
}
