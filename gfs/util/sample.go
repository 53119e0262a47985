package util

import (
	"fmt"
	"math/rand"
)

// Sample randomly chooses k distinct indices from {0, 1, ..., n-1}. n
// must be at least k. It is used by the client to decide the order in
// which it tries a chunk's replicas on read: a fresh random permutation
// each call, so a failed replica isn't retried before the others.
func Sample(n, k int) ([]int, error) {
	if n < k {
		return nil, fmt.Errorf("population is not enough for sampling (n = %d, k = %d)", n, k)
	}
	return rand.Perm(n)[:k], nil
}
