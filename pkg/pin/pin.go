// Package pin 負責 PIN 的雜湊與比對
package pin

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMismatch PIN 不符
	ErrMismatch = errors.New("pin mismatch")
	// ErrEmpty PIN 為空
	ErrEmpty = errors.New("pin is empty")
)

// Hash 產生 bcrypt hash
func Hash(pin string) (string, error) {
	if strings.TrimSpace(pin) == "" {
		return "", ErrEmpty
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

// Compare 比對 PIN 與 hash
//
// 舊資料的 pin_hash 是 SHA-256 hex (64 字元)，一樣接受
func Compare(hash string, pin string) error {
	if isLegacySHA256(hash) {
		sum := sha256.Sum256([]byte(pin))
		got := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(hash))) != 1 {
			return ErrMismatch
		}
		return nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		return fmt.Errorf("compare pin: %w", err)
	}
	return nil
}

func isLegacySHA256(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
