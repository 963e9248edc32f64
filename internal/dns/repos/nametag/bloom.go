package nametag

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// bloomFilter wraps bits-and-blooms with a mutex for writes. Reads are
// safe concurrently; the repository only writes while rebuilding.
type bloomFilter struct {
	mu sync.Mutex
	bf *bitsbloom.BloomFilter
}

// NewBloom sizes a filter for n keys at the target false-positive rate.
func NewBloom(n uint64, fpRate float64) BloomFilter {
	if n == 0 {
		n = 1
	}
	return &bloomFilter{bf: bitsbloom.NewWithEstimates(uint(n), fpRate)}
}

func (f *bloomFilter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *bloomFilter) MightContain(key []byte) bool {
	return f.bf.Test(key)
}
