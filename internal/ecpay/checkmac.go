package ecpay

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// FieldCheckMacValue is the parameter carrying the message authentication value.
const FieldCheckMacValue = "CheckMacValue"

// ComputeCheckMac produces the gateway's CheckMacValue over params.
// The algorithm must stay bit-exact with the gateway side: drop any existing
// CheckMacValue, sort keys ASCII ascending, join as k=v pairs, wrap with
// HashKey/HashIV, URL-encode, lowercase, SHA-256, uppercase hex.
// The result depends only on the parameter set, not on insertion order.
func ComputeCheckMac(params map[string]string, hashKey, hashIV string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == FieldCheckMacValue {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("HashKey=")
	b.WriteString(hashKey)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	b.WriteString("&HashIV=")
	b.WriteString(hashIV)

	// QueryEscape matches the gateway's plus-encoding of spaces
	encoded := strings.ToLower(url.QueryEscape(b.String()))
	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyCheckMac recomputes the CheckMacValue over params and compares it,
// case-insensitively and in constant time, with the supplied one.
func VerifyCheckMac(params map[string]string, hashKey, hashIV string) bool {
	received, ok := params[FieldCheckMacValue]
	if !ok || received == "" {
		return false
	}
	expected := ComputeCheckMac(params, hashKey, hashIV)
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(received)), []byte(expected)) == 1
}
