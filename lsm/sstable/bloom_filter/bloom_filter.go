// Package bloom_filter provides the per-SSTable Bloom filter used to avoid
// disk lookups for keys (and key prefixes) that are definitely absent from
// a table, adapted from the engine's structures/bloom_filter for use as an
// SSTable component with a binary serialization format.
package bloom_filter

import (
	"encoding/binary"
	"math"

	"github.com/paradox0503/cnosdb/utils/seeded_hash"
)

// BloomFilter is a probabilistic set membership test: Contains never false
// negatives, but may false-positive at the rate it was constructed with.
type BloomFilter struct {
	m uint32
	k uint32
	h []seeded_hash.HashWithSeed
	b []byte
}

// CalculateM returns the bit array size needed for expectedElements items at
// falsePositiveRate, using the standard Bloom filter sizing formula
// m = ceil(-(n*ln(p)) / (ln(2))^2).
func CalculateM(expectedElements int, falsePositiveRate float64) uint {
	n := float64(expectedElements)
	m := -(n * math.Log(falsePositiveRate)) / (math.Ln2 * math.Ln2)
	return uint(math.Ceil(m))
}

// CalculateK returns the number of hash functions that minimizes false
// positives for m bits over expectedElements items: k = ceil((m/n)*ln(2)).
func CalculateK(expectedElements int, m uint) uint {
	n := float64(expectedElements)
	k := (float64(m) / n) * math.Ln2
	return uint(math.Ceil(k))
}

// NewBloomFilter builds a filter sized for expectedElements items at
// falsePositiveRate.
func NewBloomFilter(expectedElements int, falsePositiveRate float64) *BloomFilter {
	m := CalculateM(expectedElements, falsePositiveRate)
	k := CalculateK(expectedElements, m)
	return &BloomFilter{
		m: uint32(m),
		k: uint32(k),
		h: seeded_hash.CreateHashFunctions(uint32(k)),
		b: make([]byte, uint32(math.Ceil(float64(m)/8))),
	}
}

// Add sets item's k bits.
func (bf *BloomFilter) Add(item []byte) {
	for i := uint32(0); i < bf.k; i++ {
		hash := bf.h[i].Hash(item) % uint64(bf.m)
		bf.b[hash/8] |= byte(1 << (hash % 8))
	}
}

// Contains reports whether item's k bits are all set. A true result may be
// a false positive; a false result is always exact.
func (bf *BloomFilter) Contains(item []byte) bool {
	for i := uint32(0); i < bf.k; i++ {
		hash := bf.h[i].Hash(item) % uint64(bf.m)
		if bf.b[hash/8]&byte(1<<(hash%8)) == 0 {
			return false
		}
	}
	return true
}

// Serialize encodes the filter as: 4 bytes m, 4 bytes k, then for each hash
// function a 4-byte seed length followed by the seed, then the bit array.
func (bf *BloomFilter) Serialize() []byte {
	totalSize := 8 + len(bf.b)
	for _, hash := range bf.h {
		totalSize += 4 + len(hash.Seed)
	}

	data := make([]byte, totalSize)
	offset := 0
	binary.LittleEndian.PutUint32(data[offset:], bf.m)
	offset += 4
	binary.LittleEndian.PutUint32(data[offset:], bf.k)
	offset += 4

	for _, hash := range bf.h {
		binary.LittleEndian.PutUint32(data[offset:], uint32(len(hash.Seed)))
		offset += 4
		copy(data[offset:], hash.Seed)
		offset += len(hash.Seed)
	}
	copy(data[offset:], bf.b)
	return data
}

// Deserialize rebuilds a filter from Serialize's output. A malformed or
// truncated buffer yields an empty filter rather than a panic - the caller
// treats a corrupt filter component as "cannot rule anything out", which is
// always a safe (if slow) fallback for a Bloom filter.
func Deserialize(data []byte) *BloomFilter {
	if len(data) < 8 {
		return &BloomFilter{}
	}
	offset := 0
	m := binary.LittleEndian.Uint32(data[offset:])
	offset += 4
	k := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	h := make([]seeded_hash.HashWithSeed, 0, k)
	for i := uint32(0); i < k; i++ {
		if offset+4 > len(data) {
			return &BloomFilter{m: m, k: uint32(len(h)), h: h}
		}
		seedLen := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if offset+int(seedLen) > len(data) {
			return &BloomFilter{m: m, k: uint32(len(h)), h: h}
		}
		seed := make([]byte, seedLen)
		copy(seed, data[offset:offset+int(seedLen)])
		offset += int(seedLen)
		h = append(h, seeded_hash.HashWithSeed{Seed: seed})
	}

	var b []byte
	if offset <= len(data) {
		b = make([]byte, len(data)-offset)
		copy(b, data[offset:])
	}
	return &BloomFilter{m: m, k: k, h: h, b: b}
}
