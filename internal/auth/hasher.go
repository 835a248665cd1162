package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher hashes and verifies passwords. The engine stores the
// opaque encoded hash and never interprets it; swapping the primitive
// is a composition-root decision.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// Argon2Hasher is the default PasswordHasher using argon2id with
// per-hash salt. Parameters are encoded into the stored string so old
// hashes keep verifying after a parameter change.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// NewArgon2Hasher returns a hasher with the OWASP-recommended
// parameters: time 1, memory 64 MiB, 4 threads, 32-byte key.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
	}
}

// Hash derives an argon2id hash with a fresh 16-byte salt and encodes
// everything needed to verify into one string:
//
//	argon2id$<time>$<memory>$<threads>$<salt-b64>$<hash-b64>
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		h.Time, h.Memory, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the encoded parameters and compares
// in constant time.
func (h *Argon2Hasher) Verify(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}

	var timeParam uint32
	var memory uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[1], "%d", &timeParam); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &memory); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, timeParam, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
