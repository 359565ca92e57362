package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares presented against a stored hash. Stored hashes are
// normally bcrypt; a bare sha256 hex digest is recognized as the deprecated
// legacy format, and a successful match returns a fresh bcrypt hash in
// upgraded so the caller can persist it in the background without failing
// or delaying the login.
func CheckPassword(stored, presented string) (ok bool, upgraded string) {
	if stored == "" {
		return false, ""
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil, ""
	}
	sum := sha256.Sum256([]byte(presented))
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(stored))) != 1 {
		return false, ""
	}
	rehash, err := HashPassword(presented)
	if err != nil {
		// the match stands even if the upgrade could not be computed
		return true, ""
	}
	return true, rehash
}
