package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования API-ключа
var (
	ErrEmptyKey    = errors.New("api key cannot be empty")
	ErrKeyMismatch = errors.New("api key does not match hash")
	ErrInvalidHash = errors.New("invalid api key hash format")
	ErrKeyTooLong  = errors.New("api key exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt для ключа операторского API
const DefaultCost = 12

// MaxKeyLength - ограничение bcrypt на длину входа
const MaxKeyLength = 72

// HashAPIKey хеширует ключ при загрузке конфигурации, чтобы в памяти
// процесса не хранился открытый API_KEY.
// cost вне [bcrypt.MinCost, bcrypt.MaxCost] приводится к границе.
func HashAPIKey(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if len(key) > MaxKeyLength {
		return "", ErrKeyTooLong
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey сравнивает ключ из заголовка запроса с хешем (constant-time)
func VerifyAPIKey(key, hash string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrKeyMismatch
		}
		return ErrInvalidHash
	}
	return nil
}
