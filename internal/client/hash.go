package client

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/argon2"
)

const hashSaltPrefix = "meishi:"

// HashPassword derives the password_hash the server stores. The server only
// compares opaque strings, so every client must derive it the same way:
// argon2id salted by the lower-cased username.
func HashPassword(username, password string) string {
	salt := []byte(hashSaltPrefix + strings.ToLower(username))
	key := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(key)
}
