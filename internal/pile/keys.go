// Package pile stores encrypted content frames in cell directories on
// local disk. The database holds the pile and cell rows; this package
// owns the on-disk layout under each pile root.
package pile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"dstash/internal/config"
	"dstash/internal/stash"
)

// Keys implements stash.Encryptor using filippo.io/age with X25519 keys.
// The recipient is stored in plaintext; the identity is encrypted with
// the user's passphrase using age's scrypt-based passphrase encryption.
type Keys struct {
	recipientPath string
	identityPath  string
}

var _ stash.Encryptor = (*Keys)(nil)

// NewKeys creates a Keys from configuration.
func NewKeys(cfg config.PileConfig) *Keys {
	return &Keys{
		recipientPath: cfg.RecipientPath,
		identityPath:  cfg.IdentityPath,
	}
}

// Setup generates a new X25519 key pair, stores the recipient in
// plaintext, and encrypts the identity with the passphrase using age's
// scrypt-based passphrase encryption.
func (k *Keys) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	// Ensure key directories exist.
	if err := os.MkdirAll(filepath.Dir(k.recipientPath), 0700); err != nil {
		return fmt.Errorf("creating recipient directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.identityPath), 0700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}

	// Write recipient in plaintext.
	if err := os.WriteFile(k.recipientPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing recipient: %w", err)
	}

	// Encrypt identity with passphrase and write it.
	identityFile, err := os.OpenFile(k.identityPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	defer identityFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(identityFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted identity: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted identity: %w", err)
	}

	return nil
}

// Encrypt reads plaintext from r and writes age-encrypted ciphertext to w
// using the stored recipient.
func (k *Keys) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := k.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading recipient: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// Unlock decrypts the identity using the passphrase and returns an
// UnlockedIdentity valid for the rest of the session.
func (k *Keys) Unlock(passphrase string) (stash.DecryptionContext, error) {
	identityData, err := os.ReadFile(k.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	scryptIdentity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(identityData), scryptIdentity)
	if err != nil {
		return nil, fmt.Errorf("decrypting identity: %w", err)
	}

	keyData, err := io.ReadAll(decReader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in identity file")
	}

	return &UnlockedIdentity{identity: identities[0]}, nil
}

// IsConfigured returns true if both key files exist.
func (k *Keys) IsConfigured() bool {
	if _, err := os.Stat(k.recipientPath); err != nil {
		return false
	}
	if _, err := os.Stat(k.identityPath); err != nil {
		return false
	}
	return true
}

// loadRecipient reads the recipient from disk and parses it.
func (k *Keys) loadRecipient() (age.Recipient, error) {
	recipientData, err := os.ReadFile(k.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("reading recipient: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(recipientData))
	if err != nil {
		return nil, fmt.Errorf("parsing recipient: %w", err)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in recipient file")
	}

	return recipients[0], nil
}

// UnlockedIdentity holds an unlocked age identity for decrypting cell
// files. It lives in memory only.
type UnlockedIdentity struct {
	identity age.Identity
}

var _ stash.DecryptionContext = (*UnlockedIdentity)(nil)

// Decrypt reads age-encrypted ciphertext from r and writes plaintext to w.
func (u *UnlockedIdentity) Decrypt(r io.Reader, w io.Writer) error {
	decReader, err := age.Decrypt(r, u.identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}
