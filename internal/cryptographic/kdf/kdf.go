package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	KeySize  = 32
	SaltSize = 16
)

func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// PassphraseKey stretches a passphrase with argon2id, then binds it to a purpose label with HKDF.
func PassphraseKey(passphrase string, salt []byte, purpose string) ([]byte, error) {
	stretched := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeySize)
	key := make([]byte, KeySize)
	if _, err := HKDF(stretched, salt, []byte(purpose), key); err != nil {
		return nil, err
	}
	return key, nil
}
