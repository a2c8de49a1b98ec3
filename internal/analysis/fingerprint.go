package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintDelimiter joins the identifying fields before hashing.
// Fixed so fingerprints stay stable across implementations.
const fingerprintDelimiter = "|"

// Fingerprint derives the cache key from a book's identifying
// metadata. Equal fields always produce the same digest; changing any
// field changes it. Note the fingerprint covers metadata only, not
// extracted PDF text: re-uploading a different file under identical
// metadata reuses the cached analysis until a forced regeneration.
func Fingerprint(fields BookFields) string {
	joined := strings.Join([]string{
		fields.Title,
		fields.Author,
		fields.Description,
		fields.AssetRef,
	}, fingerprintDelimiter)

	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
