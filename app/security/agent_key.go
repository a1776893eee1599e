package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAgentKey is returned when an agent presents a wrong key
var ErrInvalidAgentKey = errors.New("invalid agent key")

// HashAgentKey hashes a shared agent key for the queue configuration
func HashAgentKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("agent key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash agent key: %w", err)
	}
	return string(hash), nil
}

// VerifyAgentKey checks key against a bcrypt hash
func VerifyAgentKey(hash, key string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidAgentKey
	}
	return nil
}
