package utils

import (
	"math/rand"
)

// codeCharset excludes ambiguous characters (0/O, 1/I/L)
const codeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// RandomCode generates a short random code for referral code suffixes
func RandomCode(n int) string {
	result := make([]byte, n)
	for i := range result {
		result[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(result)
}
