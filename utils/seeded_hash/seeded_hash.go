package seeded_hash

import (
	"crypto/md5"
	"encoding/binary"
	"time"
)

// HashWithSeed is one member of a family of independent hash functions,
// built by appending a distinct seed to the input before hashing. A Bloom
// filter needs several such functions to set k independent bits per item.
type HashWithSeed struct {
	Seed []byte
}

// Hash returns data's hash under this seed.
func (h HashWithSeed) Hash(data []byte) uint64 {
	fn := md5.New()
	fn.Write(append(data, h.Seed...))
	return binary.BigEndian.Uint64(fn.Sum(nil))
}

// CreateHashFunctions returns k independent HashWithSeed values, seeded off
// the current time so two filters created in the same process still get
// distinct hash families.
func CreateHashFunctions(k uint32) []HashWithSeed {
	h := make([]HashWithSeed, k)
	ts := uint64(time.Now().Unix())
	for i := uint32(0); i < k; i++ {
		seed := make([]byte, 8)
		binary.BigEndian.PutUint64(seed, ts+uint64(i))
		h[i] = HashWithSeed{Seed: seed}
	}
	return h
}

// Serialize returns h's seed bytes.
func (h HashWithSeed) Serialize() []byte {
	return h.Seed
}

// Deserialize rebuilds a HashWithSeed from its serialized seed bytes.
func Deserialize(data []byte) HashWithSeed {
	return HashWithSeed{Seed: data}
}
