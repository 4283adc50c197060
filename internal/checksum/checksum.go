// Package checksum computes SHA-256 digests over buffers and files.
// Digests are the integrity anchor for captured audio: they are computed
// after bytes are durably written and verified against on later reads.
package checksum

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Sum returns the SHA-256 digest of b as a lowercase hex string.
func Sum(b []byte) string {
	h := sha256.Sum256(b)
	return fmt.Sprintf("%x", h)
}

// SumFile returns the SHA-256 digest of the file at path as a lowercase hex string.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
