// Package validation derives the per-probe validation vector that lets a
// response be matched to the probe that caused it without keeping any
// per-target state.
//
// A vector is the AES-128 encryption of the probe identity under a key
// derived from the process seed, so it is deterministic for a given seed and
// identity, unpredictable to a remote host, and can be decrypted back into
// the identity it was built from.
package validation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	VectorWords = 4
	VectorBytes = VectorWords * 4
	SeedBytes   = 32
)

var (
	ErrMalformed   = errors.New("validation: malformed vector")
	ErrShortBuffer = errors.New("validation: buffer shorter than a vector")
	ErrEmptySeed   = errors.New("validation: empty seed")
)

// Vector is the per-probe pseudo-random value embedded in probe fields.
type Vector [VectorWords]uint32

// Identity is what a vector encodes. Addresses are IPv4 in host order.
// Port is the scanned port, which is the response's source port.
type Identity struct {
	Src   uint32
	Dst   uint32
	Port  uint16
	Probe uint16
}

// Codec encodes identities into vectors and back. It is immutable after New
// and safe for concurrent use.
type Codec struct {
	block cipher.Block
	seed  []byte
}

func New(seed []byte) (*Codec, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	sum := blake2b.Sum256(seed)
	block, err := aes.NewCipher(sum[:aes.BlockSize])
	if err != nil {
		return nil, fmt.Errorf("validation: init cipher: %w", err)
	}
	c := &Codec{block: block, seed: make([]byte, len(seed))}
	copy(c.seed, seed)
	return c, nil
}

// NewRandom builds a codec from a fresh random seed.
func NewRandom() (*Codec, error) {
	seed := make([]byte, SeedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("validation: read seed: %w", err)
	}
	return New(seed)
}

func (c *Codec) Seed() []byte {
	out := make([]byte, len(c.seed))
	copy(out, c.seed)
	return out
}

func (c *Codec) Encode(id Identity) Vector {
	var in, out [VectorBytes]byte
	binary.BigEndian.PutUint32(in[0:4], id.Src)
	binary.BigEndian.PutUint32(in[4:8], id.Dst)
	binary.BigEndian.PutUint16(in[8:10], id.Port)
	binary.BigEndian.PutUint16(in[10:12], id.Probe)
	c.block.Encrypt(out[:], in[:])
	var v Vector
	for i := range v {
		v[i] = binary.BigEndian.Uint32(out[i*4:])
	}
	return v
}

// Decode recovers the identity a vector was encoded from. Vectors that were
// not produced by this codec are rejected with ErrMalformed.
func (c *Codec) Decode(v Vector) (Identity, error) {
	var in, out [VectorBytes]byte
	v.PutBytes(in[:])
	c.block.Decrypt(out[:], in[:])
	if binary.BigEndian.Uint32(out[12:16]) != 0 {
		return Identity{}, ErrMalformed
	}
	return Identity{
		Src:   binary.BigEndian.Uint32(out[0:4]),
		Dst:   binary.BigEndian.Uint32(out[4:8]),
		Port:  binary.BigEndian.Uint16(out[8:10]),
		Probe: binary.BigEndian.Uint16(out[10:12]),
	}, nil
}

// PutBytes writes v in network order. b must hold VectorBytes bytes.
func (v Vector) PutBytes(b []byte) {
	_ = b[VectorBytes-1]
	for i, w := range v {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
}

// VectorFromBytes reads a vector written by PutBytes.
func VectorFromBytes(b []byte) (Vector, error) {
	var v Vector
	if len(b) < VectorBytes {
		return v, ErrShortBuffer
	}
	for i := range v {
		v[i] = binary.BigEndian.Uint32(b[i*4:])
	}
	return v, nil
}
