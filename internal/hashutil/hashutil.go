// Package hashutil implements the MD5 hex digest used for session ID
// derivation and the merge-conflict tiebreak. The choice of hash is
// deliberate: it determines which side wins a merge, so every node in
// the replicated set must agree on it, and changing it changes the
// winner for every concurrent write already resolved across the set.
package hashutil

import (
	"crypto/md5"
	"encoding/hex"
)

// Hex returns the MD5 hex digest of the UTF-8 encoded input.
func Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
