package model

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// SignerIdentity names who produced a message and when.
type SignerIdentity struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Timestamp time.Time `json:"timestamp"`
	Salt      int64     `json:"salt"`
}

func NewSigner(profileID uuid.UUID, now time.Time) SignerIdentity {
	return SignerIdentity{
		ProfileID: profileID,
		Timestamp: now,
		Salt:      RandomSalt(),
	}
}

// SystemSigner is the reserved identity for server-authored messages. It is never truly signed.
func SystemSigner(now time.Time) SignerIdentity {
	return SignerIdentity{ProfileID: uuid.Nil, Timestamp: now}
}

func (s SignerIdentity) IsSystem() bool {
	return s.ProfileID == uuid.Nil
}

func RandomSalt() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.BigEndian.Uint64(b[:]))
}
