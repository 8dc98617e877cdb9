package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	hashLength = 32
	iterations = 100_000
)

func generateSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func hashPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, hashLength, sha256.New)
}

func verifyPassword(password string, salt, hash []byte) bool {
	candidate := hashPassword(password, salt)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}
