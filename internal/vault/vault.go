// Package vault encrypts keystore secrets with age passphrase recipients and
// holds decrypted key material in mlocked, zeroable buffers.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"filippo.io/age"
)

// ErrEmptyPassphrase is returned when encryption is attempted without a passphrase.
var ErrEmptyPassphrase = errors.New("passphrase is empty")

// workFactor overrides the scrypt work factor when non-zero.
var workFactor atomic.Int32 //nolint:gochecknoglobals // test hook for fast scrypt

// SetScryptWorkFactor sets log2 of the scrypt N parameter used by Encrypt.
// Zero restores the age default. Tests lower it to keep runs fast.
func SetScryptWorkFactor(logN int) {
	workFactor.Store(int32(logN)) //nolint:gosec // G115: logN is a small constant
}

// Encrypt encrypts plaintext with a passphrase-based age recipient.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if logN := workFactor.Load(); logN > 0 {
		recipient.SetWorkFactor(int(logN))
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}

	return buf.Bytes(), nil
}

// Decrypt decrypts age ciphertext with a passphrase-based identity.
func Decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}

	return plaintext, nil
}

// DecryptSecure decrypts ciphertext straight into a SecureBytes buffer and
// wipes the intermediate plaintext.
func DecryptSecure(ciphertext []byte, passphrase string) (*SecureBytes, error) {
	plaintext, err := Decrypt(ciphertext, passphrase)
	if err != nil {
		return nil, err
	}
	defer Zero(plaintext)

	return SecureBytesFromSlice(plaintext), nil
}
