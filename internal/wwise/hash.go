// Package wwise implements the 32-bit content hash used to address audio
// resources. It is the case-folded FNV-1a variant Wwise applies to event
// names: the input is lowercased byte-for-byte before hashing, so the same
// event resolves to the same media ID regardless of how its name was recorded.
//
// The constants must not change: precomputed hashes shipped inside the corpus
// and the numeric filenames in raw audio containers both depend on them.
// Conformance is locked by test vectors and re-verified against corpus hint
// hashes at load time (see internal/corpus).
package wwise

import "strconv"

const (
	offsetBasis uint32 = 0x811C9DC5
	prime       uint32 = 16777619
)

// Hash returns the case-insensitive FNV-1a 32-bit hash of name.
func Hash(name string) uint32 {
	h := offsetBasis
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		h ^= uint32(c)
		h *= prime
	}
	return h
}

// HashString returns the decimal rendering of [Hash]. Cache artifacts and raw
// container files are named by this decimal form.
func HashString(name string) string {
	return strconv.FormatUint(uint64(Hash(name)), 10)
}
