package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

var ErrInvalidKey = errors.New("invalid ed25519 key")

type (
	// Signer produces a signature over an arbitrary payload.
	Signer interface {
		Sign(payload []byte) ([]byte, error)
	}

	// Verifier checks a signature against a payload under a bound public key.
	Verifier interface {
		Verify(payload []byte, signature []byte) bool
	}

	Ed25519Signer struct {
		priv ed25519.PrivateKey
	}

	Ed25519Verifier struct {
		pub ed25519.PublicKey
	}
)

func NewEd25519Keypair() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func NewEd25519Signer(privKeyBytes []byte) (*Ed25519Signer, error) {
	if len(privKeyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key size %d: %w", len(privKeyBytes), ErrInvalidKey)
	}
	return &Ed25519Signer{priv: ed25519.PrivateKey(privKeyBytes)}, nil
}

func (s *Ed25519Signer) Sign(payload []byte) ([]byte, error) {
	return ED25519Sign(s.priv, payload), nil
}

func (s *Ed25519Signer) PublicKey() []byte {
	return s.priv.Public().(ed25519.PublicKey)
}

func NewEd25519Verifier(pubKeyBytes []byte) (*Ed25519Verifier, error) {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key size %d: %w", len(pubKeyBytes), ErrInvalidKey)
	}
	return &Ed25519Verifier{pub: ed25519.PublicKey(pubKeyBytes)}, nil
}

func (v *Ed25519Verifier) Verify(payload []byte, signature []byte) bool {
	return ED25519Verify(v.pub, payload, signature)
}

func ED25519Sign(privKeyBytes []byte, message []byte) []byte {
	privKey := ed25519.PrivateKey(privKeyBytes)
	return ed25519.Sign(privKey, message)
}

func ED25519Verify(pubKeyBytes []byte, message []byte, signature []byte) bool {
	if len(pubKeyBytes) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	pubKey := ed25519.PublicKey(pubKeyBytes)
	return ed25519.Verify(pubKey, message, signature)
}
