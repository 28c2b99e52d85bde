package payments

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// payuHashPadding is the number of empty fields the PayU v1 hash sequence
// requires between email and salt (five udf slots plus five reserved slots).
// The count and position are protocol-fixed; the gateway rejects the request
// outright if they are off by one.
const payuHashPadding = 10

// SignPayURequest computes the PayU request hash: SHA-512 over the pipe-joined
// sequence key|txnid|amount|productinfo|firstname|email|<10 empty>|salt,
// returned as lowercase hex.
func SignPayURequest(key, txnid, amount, productinfo, firstname, email, salt string) string {
	fields := make([]string, 0, 7+payuHashPadding)
	fields = append(fields, key, txnid, amount, productinfo, firstname, email)
	fields = append(fields, make([]string, payuHashPadding)...)
	fields = append(fields, salt)

	sum := sha512.Sum512([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
