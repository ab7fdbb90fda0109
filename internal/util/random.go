package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID in the format "{prefix}{hex_string}".
// Uses math/rand/v2; not intended for cryptographic purposes.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateJobID generates a unique follow-up job ID with "job_" prefix.
func GenerateJobID() string {
	return GenerateRandomID("job_", 32)
}

// GenerateLeadID generates a unique lead ID with "lead_" prefix.
func GenerateLeadID() string {
	return GenerateRandomID("lead_", 32)
}
