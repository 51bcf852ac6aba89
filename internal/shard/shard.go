// Package shard derives stable shard indexes and rule identifiers.
//
// Both use the 31-multiplier string hash over UTF-16 code units, so keys
// shard identically to JVM-side tooling reading the same output.
package shard

import (
	"strconv"
	"unicode/utf16"
)

// StringHash returns the 31-multiplier hash of s over UTF-16 code units,
// wrapping in 32-bit signed arithmetic.
func StringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

// StableShard maps key onto [0, n). It is pure and total; n <= 1 yields 0.
func StableShard(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(StringHash(key)&0x7fffffff) % n
}

// StableRuleID derives a short deterministic identifier from the rule's
// location and condition text, rendered as unsigned 32-bit hex.
func StableRuleID(className, method string, line int, expr string) string {
	h := int32(1)
	h = 31*h + StringHash(className)
	h = 31*h + StringHash(method)
	h = 31*h + int32(line)
	h = 31*h + StringHash(expr)
	return strconv.FormatUint(uint64(uint32(h)), 16)
}

// Key builds the shard routing key for a rule at class#method:line.
func Key(className, method string, line int) string {
	return className + "#" + method + ":" + strconv.Itoa(line)
}
