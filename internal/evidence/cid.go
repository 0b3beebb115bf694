package evidence

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// #region cid

// CID returns the CIDv0-shaped content identifier for a byte blob: the
// base58 encoding of the sha256 multihash (0x12 0x20 prefix). Any store
// that ingests the same bytes derives the same identifier.
func CID(data []byte) string {
	sum := sha256.Sum256(data)
	multihash := make([]byte, 0, 2+len(sum))
	multihash = append(multihash, 0x12, 0x20)
	multihash = append(multihash, sum[:]...)
	return base58.Encode(multihash)
}

// #endregion
