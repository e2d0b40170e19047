package domain

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DeriveIdempotencyKey returns the gateway key for one attempt. The same
// booking, method and attempt number always produce the same key.
func DeriveIdempotencyKey(secret string, bookingID int64, method Method, attemptNo int) string {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// only reachable with an oversized key, handled above
		panic(err)
	}
	fmt.Fprintf(h, "%d|%s|%d", bookingID, method, attemptNo)
	return hex.EncodeToString(h.Sum(nil))
}
