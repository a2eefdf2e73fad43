package controllers

import (
	"regexp"
	"strings"
)

var hexRe = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// isBlockHash matches the 64-hex-character ids the chain uses for blocks
// and transactions.
func isBlockHash(value string) bool {
	return len(value) == 64 && hexRe.MatchString(value)
}

// isHexString matches non-empty, byte-aligned hex.
func isHexString(value string) bool {
	return value != "" && len(value)%2 == 0 && hexRe.MatchString(value)
}

// parseFlag converts path and query flags the way the API always has:
// "true" in any casing is true, everything else is false.
func parseFlag(value string) bool {
	return strings.EqualFold(value, "true")
}
