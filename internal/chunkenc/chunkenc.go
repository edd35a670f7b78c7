// Package chunkenc encrypts and decrypts the chunks of a remote sequence.
// One 16-byte key covers a whole sequence; uniqueness of the IV inputs
// below is what keeps that safe.
package chunkenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"dstash/internal/model"
)

const (
	// WireBlockSize is the on-the-wire size of one AES-128-GCM block:
	// PlainBlockSize bytes of ciphertext followed by a 16-byte tag.
	WireBlockSize = 65536

	// PlainBlockSize is the plaintext carried per GCM block.
	PlainBlockSize = WireBlockSize - gcmTagSize

	gcmTagSize = 16
)

// NewKey mints a random 16-byte content key.
func NewKey() ([]byte, error) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("minting content key: %w", err)
	}
	return key, nil
}

// gcmNonce writes the block number big-endian into the last 8 bytes of a
// 12-byte nonce. Block numbers are never reused under one key, so the
// nonces never collide.
func gcmNonce(blockNumber uint64) [12]byte {
	var nonce [12]byte
	binary.BigEndian.PutUint64(nonce[4:], blockNumber)
	return nonce
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != model.CipherAES128GCM.KeyLen() {
		return nil, fmt.Errorf("%w: AES-128-GCM takes %d-byte keys, got %d",
			model.ErrKeyLength, model.CipherAES128GCM.KeyLen(), len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("building GCM: %w", err)
	}
	return aead, nil
}

// EncryptGCM seals plaintext into wire blocks. firstBlock is the number of
// GCM blocks already sealed under the same key in earlier chunks of the
// sequence; block numbers continue from there.
func EncryptGCM(key []byte, firstBlock uint64, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	wire := make([]byte, 0, GCMWireLength(int64(len(plaintext))))
	for i := 0; len(plaintext) > 0; i++ {
		n := min(len(plaintext), PlainBlockSize)
		nonce := gcmNonce(firstBlock + uint64(i))
		wire = aead.Seal(wire, nonce[:], plaintext[:n], nil)
		plaintext = plaintext[n:]
	}
	return wire, nil
}

// DecryptGCM opens wire blocks sealed by EncryptGCM with the same
// firstBlock.
func DecryptGCM(key []byte, firstBlock uint64, wire []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, 0, len(wire))
	for i := 0; len(wire) > 0; i++ {
		n := min(len(wire), WireBlockSize)
		if n <= gcmTagSize {
			return nil, fmt.Errorf("%w: truncated GCM block %d (%d bytes)",
				model.ErrIntegrity, firstBlock+uint64(i), n)
		}
		nonce := gcmNonce(firstBlock + uint64(i))
		opened, err := aead.Open(plaintext, nonce[:], wire[:n], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: GCM block %d: %v", model.ErrIntegrity, firstBlock+uint64(i), err)
		}
		plaintext = opened
		wire = wire[n:]
	}
	return plaintext, nil
}

// GCMWireLength returns the wire size of a chunk with plainLen bytes of
// plaintext: one 16-byte tag per started block.
func GCMWireLength(plainLen int64) int64 {
	blocks := plainLen / PlainBlockSize
	if plainLen%PlainBlockSize != 0 {
		blocks++
	}
	return plainLen + gcmTagSize*blocks
}

// WireBlocks returns how many GCM blocks a chunk of wireLen bytes holds,
// which is the firstBlock offset of the chunk after it.
func WireBlocks(wireLen int64) uint64 {
	blocks := wireLen / WireBlockSize
	if wireLen%WireBlockSize != 0 {
		blocks++
	}
	return uint64(blocks)
}

// ApplyCTR encrypts or decrypts one chunk with AES-128-CTR. The IV carries
// the chunk's position in the sequence big-endian in its last 8 bytes, so
// every chunk gets a distinct keystream under the shared key. CTR is an
// involution: applying it twice restores the input.
func ApplyCTR(key []byte, chunkIndex uint64, data []byte) ([]byte, error) {
	if len(key) != model.CipherAES128CTR.KeyLen() {
		return nil, fmt.Errorf("%w: AES-128-CTR takes %d-byte keys, got %d",
			model.ErrKeyLength, model.CipherAES128CTR.KeyLen(), len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building AES cipher: %w", err)
	}

	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint64(iv[8:], chunkIndex)

	out := make([]byte, len(data))
	cipher.NewCTR(block, iv[:]).XORKeyStream(out, data)
	return out, nil
}
