package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mrz1836/estatelink/internal/fileutil"
	"github.com/mrz1836/estatelink/internal/vault"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

const (
	keystoreExtension   = ".age"
	keystorePermissions = 0o600
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Store manages age-encrypted mnemonic files in a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the keystore directory.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateName checks a keystore name.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return linkerr.WithSuggestion(
			linkerr.WithDetails(linkerr.ErrInvalidInput, map[string]string{"name": name}),
			"use 1-64 letters, digits, '-' or '_'",
		)
	}
	return nil
}

// Create generates a new mnemonic, stores it encrypted and returns it so the
// caller can show it once.
func (s *Store) Create(name string, wordCount int, password []byte) (string, error) {
	mnemonic, err := GenerateMnemonic(wordCount)
	if err != nil {
		return "", err
	}
	if err := s.Import(name, mnemonic, password); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// Import validates mnemonic and stores it encrypted under name.
func (s *Store) Import(name, mnemonic string, password []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateMnemonic(mnemonic); err != nil {
		return err
	}

	exists, err := s.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		return linkerr.WithDetails(linkerr.ErrKeystoreExists, map[string]string{"name": name})
	}

	normalized := []byte(NormalizeMnemonic(mnemonic))
	defer vault.Zero(normalized)

	ciphertext, err := vault.Encrypt(normalized, string(password))
	if err != nil {
		if errors.Is(err, vault.ErrEmptyPassphrase) {
			return linkerr.WithSuggestion(linkerr.ErrInvalidInput, "a keystore password is required")
		}
		return fmt.Errorf("encrypting keystore: %w", err)
	}

	return fileutil.WriteAtomic(s.path(name), ciphertext, keystorePermissions)
}

// Exists reports whether a keystore named name is present.
func (s *Store) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking keystore: %w", err)
}

// List returns the stored keystore names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading keystore directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keystoreExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), keystoreExtension))
	}
	sort.Strings(names)
	return names, nil
}

// Unlock decrypts the mnemonic for name into locked memory.
func (s *Store) Unlock(name string, password []byte) (*vault.SecureBytes, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	ciphertext, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, linkerr.WithSuggestion(
				linkerr.WithDetails(linkerr.ErrKeystoreNotFound, map[string]string{"name": name}),
				"create one with 'estatelink keystore create "+name+"'",
			)
		}
		return nil, fmt.Errorf("reading keystore: %w", err)
	}

	mnemonic, err := vault.DecryptSecure(ciphertext, string(password))
	if err != nil {
		return nil, linkerr.WithCause(linkerr.ErrDecryptionFailed, err)
	}
	return mnemonic, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+keystoreExtension)
}
