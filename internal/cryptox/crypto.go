// Package cryptox implements the per-user content encryption scheme.
//
// Every user owns a single random encryption salt generated at account
// creation. A content key is derived deterministically from (email, salt), so
// content can be re-decrypted on any machine holding only the user's salt.
// Encryption is AES-256-GCM with the owner's email bound as associated data,
// which makes ciphertext from one account undecryptable under another.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mberzins/envault/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// keyIterations is the PBKDF2 iteration count for content keys.
	// Changing it changes every derived key, so it is fixed for the life
	// of the stored data.
	keyIterations = 100_000

	keyLen    = 32
	ivLen     = 12
	gcmTagLen = 16

	saltLen = 32
)

// GenerateSalt returns a fresh random salt for a new user. A user's salt is
// generated exactly once and never rotated: it seeds every content key.
func GenerateSalt() []byte {
	return common.GenerateRandByteArray(saltLen)
}

// DeriveKey stretches (email, salt) into a 256-bit content key.
// Same inputs always yield the same key.
func DeriveKey(email string, salt []byte) []byte {
	return pbkdf2.Key([]byte(email), salt, keyIterations, keyLen, sha256.New)
}

// Encrypt encrypts plaintext under the key derived from (email, salt) using
// AES-256-GCM with a fresh random 96-bit IV. The email is bound as associated
// data. The GCM tag is returned separately from the ciphertext.
func Encrypt(plaintext []byte, email string, salt []byte) (ciphertext, iv, tag []byte, err error) {
	key := DeriveKey(email, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = common.GenerateRandByteArray(ivLen)

	sealed := aesgcm.Seal(nil, iv, plaintext, []byte(email))

	// Seal appends the tag to the ciphertext; keep them apart on the wire.
	n := len(sealed) - gcmTagLen
	return sealed[:n], iv, sealed[n:], nil
}

// Decrypt reverses Encrypt. The caller must supply the content owner's own
// email and salt; a mismatched tag, key, or email yields common.ErrIntegrity
// and no partial output is ever returned.
func Decrypt(ciphertext, iv, tag []byte, email string, salt []byte) ([]byte, error) {
	key := DeriveKey(email, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesgcm.Open(nil, iv, sealed, []byte(email))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIntegrity, err)
	}
	return plaintext, nil
}

// argon2id parameters for password hashing (not content keys).
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// HashPassword hashes a login password with argon2id and a random salt.
// The result embeds the salt: "argon2id$<salt hex>$<hash hex>".
func HashPassword(password string) (string, error) {
	salt := common.GenerateRandByteArray(16)
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLen)
	return fmt.Sprintf("argon2id$%s$%s", hex.EncodeToString(salt), hex.EncodeToString(hash)), nil
}

// VerifyPassword reports whether password matches the encoded argon2id hash.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}
