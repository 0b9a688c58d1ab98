package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Bloom is a fixed-size bit-array Bloom filter over the keys written into
// one SSTable. It guarantees no false negatives for keys it has seen; it
// may report false positives for keys it has not.
type Bloom struct {
	k    uint8
	bits uint32
	buf  []byte
}

// NewBloom sizes a filter for n expected items at target false-positive
// rate p, per spec §4.3:
//
//	m = ceil(-n * ln(p) / (ln 2)^2)   bits, rounded up to whole bytes
//	k = ceil((m / n) * ln 2)          hash functions
func NewBloom(n int, p float64) *Bloom {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	bits := uint32(m)
	if bits < 8 {
		bits = 8
	}

	k := uint8(math.Ceil((float64(bits) / float64(n)) * math.Ln2))
	if k == 0 {
		k = 1
	}

	byteLen := (bits + 7) / 8
	bits = byteLen * 8

	return &Bloom{
		k:    k,
		bits: bits,
		buf:  make([]byte, byteLen),
	}
}

// Add records key as present.
func (b *Bloom) Add(key string) {
	h1, h2 := doubleHash(key)
	for i := uint8(0); i < b.k; i++ {
		probe := (h1 + uint64(i)*h2) % uint64(b.bits)
		b.setBit(uint32(probe))
	}
}

// Contains reports whether key may be present. False positives are
// possible; false negatives are not (P4).
func (b *Bloom) Contains(key string) bool {
	h1, h2 := doubleHash(key)
	for i := uint8(0); i < b.k; i++ {
		probe := (h1 + uint64(i)*h2) % uint64(b.bits)
		if !b.getBit(uint32(probe)) {
			return false
		}
	}
	return true
}

func (b *Bloom) setBit(bit uint32) {
	b.buf[bit/8] |= 1 << (bit % 8)
}

func (b *Bloom) getBit(bit uint32) bool {
	return b.buf[bit/8]&(1<<(bit%8)) != 0
}

// Encode serializes the filter as k(1B) || bits(4B LE) || bitmap, the
// "bloom blob" embedded between the data block and the sparse index in an
// SSTable file (spec §4.2).
func (b *Bloom) Encode() []byte {
	out := make([]byte, 1+4+len(b.buf))
	out[0] = b.k
	binary.LittleEndian.PutUint32(out[1:5], b.bits)
	copy(out[5:], b.buf)
	return out
}

// DecodeBloom parses a blob produced by Encode.
func DecodeBloom(blob []byte) (*Bloom, error) {
	if len(blob) < 5 {
		return nil, corruptionErrorf("bloom blob too short: %d bytes", len(blob))
	}
	k := blob[0]
	bits := binary.LittleEndian.Uint32(blob[1:5])
	buf := blob[5:]
	if k == 0 || bits == 0 {
		return nil, corruptionErrorf("bloom blob has zero k or bits")
	}
	if uint32(len(buf))*8 != bits {
		return nil, corruptionErrorf("bloom blob bitmap length %d does not match bits %d", len(buf), bits)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return &Bloom{k: k, bits: bits, buf: out}, nil
}

// doubleHash derives two independent 64-bit hashes of key using FNV-1a, the
// primary hash and a rehash of a prefixed key, per spec §4.3.
func doubleHash(key string) (uint64, uint64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	h1 := h.Sum64()

	h.Reset()
	_, _ = h.Write([]byte{0x7f})
	_, _ = h.Write([]byte(key))
	h2 := h.Sum64()
	if h2 == 0 {
		h2 = 0x9e3779b97f4a7c15
	}
	return h1, h2
}
