package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands the master secret into a 32-byte purpose-bound key.
// Deriving per purpose keeps the raw master secret out of signing code
// and lets future key uses coexist without sharing key material.
func DeriveKey(masterSecret, purpose string) ([]byte, error) {
	if masterSecret == "" {
		// Ephemeral secret: fine for development, tokens die with the
		// process. In production APP_SECRET should always be set.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		masterSecret = base64.StdEncoding.EncodeToString(b)
		log.Println("⚠️  WARNING: APP_SECRET not set, using ephemeral token secret")
	}

	r := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}
