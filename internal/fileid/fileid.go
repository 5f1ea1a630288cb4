// Package fileid derives stable identifiers for local files and in-memory content.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	pathPrefix    = "path:"
	contentPrefix = "sha256:"
)

// PathID returns a stable ID for a watched file. Same path always yields the
// same ID; used to submit each dropped file once.
func PathID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}

// ContentDigest returns a digest of data. Identical bytes yield the same digest
// regardless of filename.
func ContentDigest(data []byte) string {
	hash := sha256.Sum256(data)
	return contentPrefix + hex.EncodeToString(hash[:])
}
