package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const contentKeyName = "PASTE_CONTENT_KEY"

// Box encrypts paste content with the service key. Ciphertexts are
// base64 strings so they fit the same content column as plain bodies.
type Box struct {
	key []byte
}

// NewBox loads the 32-byte base64 content key from the provider.
func NewBox(ctx context.Context, p Provider) (*Box, error) {
	raw, err := p.GetSecret(ctx, contentKeyName)
	if err != nil {
		return nil, errors.Wrap(err, "load content key")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "content key must be base64")
	}
	return NewBoxWithKey(key)
}

func NewBoxWithKey(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("content key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Box{key: k}, nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (b *Box) Open(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "decode ciphertext")
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, "open ciphertext")
	}
	return string(plaintext), nil
}
