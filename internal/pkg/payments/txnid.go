package payments

import (
	"crypto/rand"
	"fmt"
	"time"
)

const txnSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// txnSuffixLength leaves ~46 bits of randomness per id, which keeps the
// collision probability negligible even for many ids within one millisecond.
const txnSuffixLength = 9

// txnRandLimit is the largest multiple of the alphabet size below 256; bytes
// at or above it are discarded so every alphabet character is equally likely.
const txnRandLimit = 252

// NewTransactionID returns {prefix}{epochMillis}{random base36 suffix}. The
// epoch component alone is not unique under concurrent checkouts; the random
// suffix carries that responsibility.
func NewTransactionID(prefix string) string {
	suffix := make([]byte, 0, txnSuffixLength)
	raw := make([]byte, txnSuffixLength)
	for len(suffix) < txnSuffixLength {
		if _, err := rand.Read(raw); err != nil {
			// crypto/rand never fails on supported platforms; if it does the
			// process is in no state to take payments.
			panic(fmt.Sprintf("payments: reading random bytes: %v", err))
		}
		for _, b := range raw {
			if b >= txnRandLimit {
				continue
			}
			suffix = append(suffix, txnSuffixAlphabet[int(b)%len(txnSuffixAlphabet)])
			if len(suffix) == txnSuffixLength {
				break
			}
		}
	}
	return fmt.Sprintf("%s%d%s", prefix, time.Now().UnixMilli(), suffix)
}
