package model

import "fmt"

// Cipher identifies the encryption scheme of a chunk sequence.
type Cipher string

const (
	CipherAES128CTR Cipher = "AES_128_CTR"
	CipherAES128GCM Cipher = "AES_128_GCM"
)

// KeyLen returns the key length in bytes the cipher requires, or 0 for an
// unknown cipher.
func (c Cipher) KeyLen() int {
	switch c {
	case CipherAES128CTR, CipherAES128GCM:
		return 16
	default:
		return 0
	}
}

func (c Cipher) Valid() bool { return c.KeyLen() != 0 }

// ParseCipher converts a stored cipher name back to a Cipher.
func ParseCipher(s string) (Cipher, error) {
	c := Cipher(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown cipher %q", ErrInvalidArgument, s)
	}
	return c, nil
}
