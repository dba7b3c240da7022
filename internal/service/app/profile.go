package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"secure_chat/internal/cryptographic/encryption"
	"secure_chat/internal/cryptographic/kdf"
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
)

const signingKeyPurpose = "secure_chat signing key"

var (
	ErrKeyWithoutPassphrase = errors.New("profile has a signing key, set SECURECHAT_KEY_PASSPHRASE")
	ErrForeignKey           = errors.New("profile public key is not held by this client")
)

type (
	ProfileStore interface {
		GetByName(ctx context.Context, name string) (*model.Profile, error)
		UpdateKeys(ctx context.Context, profileID string, publicKey, sealedKey, keySalt []byte) error
	}

	registrar interface {
		register(ctx context.Context, name string, publicKey []byte) (*model.PublicKey, error)
	}
)

// loadProfile returns the named profile and its signer, registering the profile and sealing a
// fresh signing key when needed. An empty passphrase yields a profile that chats unsigned.
func loadProfile(ctx context.Context, store ProfileStore, reg registrar, name, passphrase string) (*model.Profile, signature.Signer, error) {
	p, err := store.GetByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	if passphrase == "" {
		if p != nil && len(p.PublicKey) > 0 {
			return nil, nil, ErrKeyWithoutPassphrase
		}
		if p == nil {
			pk, err := reg.register(ctx, name, nil)
			if err != nil {
				return nil, nil, err
			}
			p = &model.Profile{ProfileID: pk.ProfileID, Name: pk.Name}
		}
		return p, nil, nil
	}

	if p != nil && len(p.SealedKey) > 0 {
		signer, err := openSigningKey(passphrase, p)
		if err != nil {
			return nil, nil, err
		}
		return p, signer, nil
	}
	if p != nil && len(p.PublicKey) > 0 {
		return nil, nil, ErrForeignKey
	}

	pub, priv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		pk, err := reg.register(ctx, name, pub)
		if err != nil {
			return nil, nil, err
		}
		p = &model.Profile{ProfileID: pk.ProfileID, Name: pk.Name}
	}

	sealed, salt, err := sealSigningKey(passphrase, p.ProfileID, priv)
	if err != nil {
		return nil, nil, err
	}
	if err := store.UpdateKeys(ctx, p.ProfileID, pub, sealed, salt); err != nil {
		return nil, nil, fmt.Errorf("store signing key: %w", err)
	}
	p.PublicKey, p.SealedKey, p.KeySalt = pub, sealed, salt

	signer, err := signature.NewEd25519Signer(priv)
	if err != nil {
		return nil, nil, err
	}
	return p, signer, nil
}

func sealSigningKey(passphrase, profileID string, priv []byte) ([]byte, []byte, error) {
	salt := make([]byte, kdf.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	key, err := kdf.PassphraseKey(passphrase, salt, signingKeyPurpose)
	if err != nil {
		return nil, nil, err
	}
	sealed, err := encryption.Seal(key, priv, []byte(profileID))
	if err != nil {
		return nil, nil, err
	}
	return sealed, salt, nil
}

func openSigningKey(passphrase string, p *model.Profile) (*signature.Ed25519Signer, error) {
	key, err := kdf.PassphraseKey(passphrase, p.KeySalt, signingKeyPurpose)
	if err != nil {
		return nil, err
	}
	priv, err := encryption.Open(key, p.SealedKey, []byte(p.ProfileID))
	if err != nil {
		return nil, fmt.Errorf("open signing key: %w", err)
	}
	return signature.NewEd25519Signer(priv)
}
