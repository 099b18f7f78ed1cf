package util

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const slugChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenSlug draws random base62 slugs of the given length until one is
// not already taken. Collisions on a random slug space this size are
// vanishingly rare, so the regenerate loop has no fixed retry bound;
// persistent store errors still abort it.
func GenSlug(length int, exists func(string) (bool, error)) (string, error) {
	if length <= 0 {
		return "", errors.New("slug length must be positive")
	}
	for {
		slug, err := randomSlug(length)
		if err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		taken, err := exists(slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
	}
}

func randomSlug(length int) (string, error) {
	max := big.NewInt(int64(len(slugChars)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = slugChars[n.Int64()]
	}
	return string(b), nil
}
