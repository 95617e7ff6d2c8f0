// Package vault encrypts credential material at rest using Fernet
// authenticated symmetric encryption. Key material is process-wide
// configuration loaded once at startup; the vault is injected as an explicit
// dependency so tests can run with a throwaway key.
package vault

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fernet/fernet-go"

	"github.com/portview/portfolio-backend/internal/apperrors"
)

// Vault holds versioned Fernet keys. Encryption always uses the primary
// (highest) version; decryption selects the key recorded next to the
// ciphertext, so older credentials survive a key rotation until their
// version is removed from configuration.
type Vault struct {
	keys    map[int]*fernet.Key
	primary int
}

// New parses vault key entries of the form "version:key", where key is a
// base64url-encoded 32-byte Fernet key. The highest version becomes the
// primary encryption key. At least one entry is required and versions must
// be unique positive integers.
func New(entries []string) (*Vault, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("vault requires at least one key")
	}

	keys := make(map[int]*fernet.Key, len(entries))
	primary := 0

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		versionStr, encoded, found := strings.Cut(entry, ":")
		if !found {
			return nil, fmt.Errorf("vault key entry must be version:key")
		}

		version, err := strconv.Atoi(versionStr)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("invalid vault key version %q", versionStr)
		}
		if _, exists := keys[version]; exists {
			return nil, fmt.Errorf("duplicate vault key version %d", version)
		}

		key, err := fernet.DecodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode vault key version %d: %w", version, err)
		}

		keys[version] = key
		if version > primary {
			primary = version
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("vault requires at least one key")
	}

	return &Vault{keys: keys, primary: primary}, nil
}

// PrimaryVersion returns the key version used for new encryptions.
func (v *Vault) PrimaryVersion() int {
	return v.primary
}

// Encrypt seals plaintext under the primary key and returns the Fernet token
// alongside the key version that must be stored with it.
func (v *Vault) Encrypt(plaintext string) (string, int, error) {
	token, err := fernet.EncryptAndSign([]byte(plaintext), v.keys[v.primary])
	if err != nil {
		return "", 0, fmt.Errorf("%w: encryption failed", apperrors.ErrVault)
	}
	return string(token), v.primary, nil
}

// Decrypt opens a Fernet token with the key of the given version. An unknown
// version means the key was rotated away and the credential must be
// re-established by re-linking; a failed verification means the ciphertext
// is corrupt or was tampered with. Both report as a vault error.
func (v *Vault) Decrypt(ciphertext string, keyVersion int) (string, error) {
	key, ok := v.keys[keyVersion]
	if !ok {
		return "", fmt.Errorf("%w: unknown key version %d", apperrors.ErrVault, keyVersion)
	}

	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("%w: ciphertext failed verification", apperrors.ErrVault)
	}

	return string(msg), nil
}
