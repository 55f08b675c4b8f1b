package users

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrMismatchedHashAndPassword is returned when the password does not match
var ErrMismatchedHashAndPassword = ErrBadPassword

// BcryptHasher implements PasswordHasher with bcrypt. The salt is
// generated per call and embedded in the hash.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using cost, or the build default
// when cost is outside the bcrypt range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{Cost: cost}
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// HashPassword will generate a password hash
func (b *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// Verify reports whether password matches hash. Malformed hashes
// never verify.
func (b *BcryptHasher) Verify(password, hash string) bool {
	return ComparePasswordAndHash(password, hash) == nil
}

// HashPassword hashes with the build default cost
func HashPassword(password string) (string, error) {
	return (&BcryptHasher{}).HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash is a hash nobody knows the password for
func RandomPasswordHash() string {
	h, err := HashPassword(uuid.NewString())
	if err != nil {
		return RandomPasswordHash()
	}
	return h
}
