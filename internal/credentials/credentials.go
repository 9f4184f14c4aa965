package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
	"github.com/zalando/go-keyring"
)

const serviceName = "jsbridge"

var ErrNotFound = errors.New("credentials: not found")

func StoreAppSecret(key string, value string) error {
	return keyring.Set(serviceName, "app:"+key, value)
}

func LoadAppSecret(key string) (string, error) {
	val, err := keyring.Get(serviceName, "app:"+key)
	if err != nil {
		return "", ErrNotFound
	}
	return val, nil
}

func DeleteAppSecret(key string) {
	_ = keyring.Delete(serviceName, "app:"+key)
}

// EnsureAppSecret returns the secret stored under key, generating and
// storing size random bytes (unpadded URL-safe base64) the first time.
func EnsureAppSecret(key string, size int) (string, error) {
	if val, err := LoadAppSecret(key); err == nil {
		return val, nil
	}

	if size <= 0 {
		return "", fmt.Errorf("generate %s: invalid size %d", key, size)
	}
	secret := securecookie.GenerateRandomKey(size)
	if secret == nil {
		return "", fmt.Errorf("generate %s: no randomness available", key)
	}
	val := base64.RawURLEncoding.EncodeToString(secret)
	if err := StoreAppSecret(key, val); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return val, nil
}
