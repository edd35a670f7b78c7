package stash

import "io"

// Encryptor handles at-rest encryption of pile cell files. Writes use
// the public recipient and need no passphrase. Reads require a
// passphrase to unlock the identity, producing a DecryptionContext for
// the session.
type Encryptor interface {
	// Setup performs one-time key generation: a key pair is created, the
	// recipient stored in plaintext, the identity encrypted with the
	// passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w using
	// the recipient only.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the identity using the passphrase and returns a
	// DecryptionContext valid for the session. Returns an error if the
	// passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity in memory for the duration
// of a read session. Created by Encryptor.Unlock. The unlocked identity is
// held in memory only and never written to disk.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
