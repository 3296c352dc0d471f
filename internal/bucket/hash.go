// Package bucket provides the deterministic user-to-bucket hash that makes
// variant assignment stable for a returning user without a prior-assignment
// lookup.
package bucket

import "hash/fnv"

// Hash maps (userID, seed) to a value in [0, 1). It is a pure function of
// its inputs, so the same pair yields the same value across processes and
// releases. Different seeds for the same user behave as independent draws,
// which is what decorrelates the traffic-allocation draw from the variant
// draw.
func Hash(userID, seed string) float64 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{':'})
	h.Write([]byte(seed))
	return float64(h.Sum32()) / (1 << 32)
}
