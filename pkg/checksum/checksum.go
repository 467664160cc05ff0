// Package checksum provides SHA-256 helpers. The content store hashes every archive
// before it is written and the hex digest is kept on the catalog row.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SHA256Bytes hashes an in-memory buffer. It cannot fail.
func SHA256Bytes(data []byte) string {
	sum, _ := CalculateSHA256(bytes.NewReader(data))
	return sum
}
