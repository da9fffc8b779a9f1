// Package crypto - хеширование и проверка токенов участников (bcrypt).
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyToken     = errors.New("token cannot be empty")
	ErrTokenMismatch  = errors.New("token does not match hash")
	ErrInvalidHash    = errors.New("invalid token hash format")
	ErrTokenTooLong   = errors.New("token exceeds maximum length of 72 bytes")
	ErrTokenGenerator = errors.New("failed to generate token")
)

// Стоимость bcrypt
const (
	DefaultCost = 12
	MinCost     = bcrypt.MinCost
	MaxCost     = bcrypt.MaxCost
)

// MaxTokenLength ограничение bcrypt (72 байта)
const MaxTokenLength = 72

// TokenBytes длина случайной части токена в байтах (hex удваивает длину)
const TokenBytes = 24

// HashToken хеширует токен с указанной стоимостью.
// cost вне диапазона bcrypt прижимается к границам.
func HashToken(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}

	if cost < MinCost {
		cost = MinCost
	}
	if cost > MaxCost {
		cost = MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken проверяет токен против хеша (constant-time внутри bcrypt)
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// GenerateToken новый случайный токен (hex, 48 символов)
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrTokenGenerator, err)
	}
	return hex.EncodeToString(buf), nil
}

// GetHashCost извлекает cost из хеша
func GetHashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}

// NeedsRehash true если cost хеша меньше желаемого или хеш не читается
func NeedsRehash(hash string, desiredCost int) bool {
	currentCost, err := GetHashCost(hash)
	if err != nil {
		return true
	}
	return currentCost < desiredCost
}
