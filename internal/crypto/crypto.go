// Package crypto provides envelope encryption for credential material stored
// in the ledger. Secrets are sealed into Fernet tokens (versioned, signed
// ciphertext blobs) using a key kept in the settings table.
package crypto

import (
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/skybridge-ai/compute-plane/internal/database"
)

// Encryptor seals plaintext secrets into opaque envelopes and opens them
// again. Orchestrators take an Encryptor rather than calling package
// functions so tests can substitute an in-memory fake.
type Encryptor interface {
	Seal(plaintext string) (string, error)
	Open(envelope string) (string, error)
}

// FernetEncryptor implements Encryptor with fernet tokens. The signing key is
// generated on first use and persisted in the settings table.
type FernetEncryptor struct{}

func (FernetEncryptor) key() (*fernet.Key, error) {
	keyStr, err := database.GetSetting("fernet_key")
	if err != nil {
		var k fernet.Key
		k.Generate()
		keyStr = k.Encode()
		if err := database.SetSetting("fernet_key", keyStr); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		return &k, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	return key, nil
}

func (e FernetEncryptor) Seal(plaintext string) (string, error) {
	key, err := e.key()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func (e FernetEncryptor) Open(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	key, err := e.key()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(envelope), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}

// Mask redacts a secret for display, keeping the last 4 characters.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
