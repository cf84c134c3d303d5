package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.  An empty
// hash never matches.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// AdminPasswordHash returns hash when set, otherwise the bcrypt hash of
// plain.  Both empty yields an empty hash, which disables admin login.
func AdminPasswordHash(hash, plain string, cost int) (string, error) {
	if hash != "" || plain == "" {
		return hash, nil
	}
	return HashPassword(plain, cost)
}
