package crypto

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Encryptor seals provider secrets (OAuth access and refresh tokens) before
// they are written to the accounts table. Sealed values are base64 age
// payloads addressed to a single X25519 identity.
type Encryptor struct {
	identity *age.X25519Identity
}

// NewEncryptor parses an age identity. An empty key generates a throwaway
// identity, so secrets sealed before a restart cannot be opened after it.
func NewEncryptor(key string) (*Encryptor, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		id, err := age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
		return &Encryptor{identity: id}, nil
	}

	id, err := age.ParseX25519Identity(key)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	return &Encryptor{identity: id}, nil
}

// GenerateKey returns a new identity suitable for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	return id.String(), nil
}

// Seal encrypts secret. The empty string seals to the empty string so
// optional token columns stay empty.
func (e *Encryptor) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	if _, err := io.WriteString(w, secret); err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open reverses Seal.
func (e *Encryptor) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed secret: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), e.identity)
	if err != nil {
		return "", fmt.Errorf("opening secret: %w", err)
	}
	secret, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("opening secret: %w", err)
	}
	return string(secret), nil
}
