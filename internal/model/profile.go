package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// Profile is a registered chat identity. PublicKey may be empty for profiles that chat unsigned.
	Profile struct {
		ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
		ProfileID string             `bson:"profile_id" json:"profile_id"`
		Name      string             `bson:"name" json:"name"`
		PublicKey []byte             `bson:"public_key,omitempty" json:"public_key,omitempty"`

		// Client-side only: the sealed ed25519 private key and its KDF salt.
		SealedKey []byte `bson:"sealed_key,omitempty" json:"-"`
		KeySalt   []byte `bson:"key_salt,omitempty" json:"-"`
	}

	RegisterRequest struct {
		Name      string `json:"name" validate:"required"`
		PublicKey []byte `json:"public_key,omitempty"`
	}

	PublicKey struct {
		ProfileID string `json:"profile_id"`
		Name      string `json:"name"`
		PublicKey []byte `json:"public_key,omitempty"`
	}
)
