package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

const (
	maxPasswordLength = 1024
	saltLength        = 16
	keyLength         = 32
)

// Hasher produces and verifies argon2id hashes. Passwords are HMAC'd
// with a server-side pepper before hashing so a leaked database alone
// is not crackable offline.
type Hasher struct {
	iterations  uint32
	memory      uint32
	parallelism uint8
	pepper      []byte
}

func NewHasher(time, memory uint32, parallelism uint8, pepper []byte) (*Hasher, error) {
	if len(pepper) < 32 {
		return nil, errors.New("pepper must be at least 32 bytes")
	}
	if time == 0 || time > 100 {
		return nil, errors.New("iterations must be between 1 and 100")
	}
	if memory < 8*1024 || memory > 2*1024*1024 {
		return nil, errors.New("memory must be between 8192 and 2097152 KiB")
	}
	if parallelism == 0 {
		return nil, errors.New("parallelism must be at least 1")
	}
	pepperCopy := make([]byte, len(pepper))
	copy(pepperCopy, pepper)
	return &Hasher{
		iterations:  time,
		memory:      memory,
		parallelism: parallelism,
		pepper:      pepperCopy,
	}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordLength {
		return "", errors.New("password too long")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}
	hash := argon2.IDKey(h.applyPepper(password), salt, h.iterations, h.memory, h.parallelism, keyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.iterations, h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// Verify reports whether password matches the encoded hash. Malformed
// hashes verify against dummy parameters so the work factor stays
// constant either way.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > maxPasswordLength {
		return false, nil
	}
	mem, iter, threads := h.memory, h.iterations, h.parallelism
	var salt, hash []byte
	valid := true

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		valid = false
	} else if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &threads); err != nil {
		valid = false
	} else if mem > 2*1024*1024 || iter > 1000 || threads == 0 {
		valid = false
	} else {
		var err error
		salt, err = base64.RawStdEncoding.DecodeString(parts[4])
		if err != nil || len(salt) == 0 {
			valid = false
		}
		hash, err = base64.RawStdEncoding.DecodeString(parts[5])
		if err != nil || len(hash) == 0 || len(hash) > 256 {
			valid = false
		}
	}
	if !valid {
		mem, iter, threads = h.memory, h.iterations, h.parallelism
		salt = make([]byte, saltLength)
		hash = make([]byte, keyLength)
	}
	other := argon2.IDKey(h.applyPepper(password), salt, iter, mem, threads, uint32(len(hash)))
	match := subtle.ConstantTimeCompare(hash, other) == 1
	return valid && match, nil
}

func (h *Hasher) applyPepper(password string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}
