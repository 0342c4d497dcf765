package thread

import (
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes comment content for duplicate detection. Surrounding
// whitespace is ignored.
func Fingerprint(content string) []byte {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(content)))
	return sum[:]
}
