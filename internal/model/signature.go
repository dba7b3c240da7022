package model

import (
	"bytes"
	"encoding/hex"

	"secure_chat/internal/cryptographic/signature"
)

// MaxSignatureLength bounds signatures accepted off the wire.
const MaxSignatureLength = 256

// Signature is an opaque signature. The zero-length value means unsigned.
type Signature []byte

var EmptySignature = Signature(nil)

func (s Signature) IsEmpty() bool {
	return len(s) == 0
}

func (s Signature) Equal(other Signature) bool {
	return bytes.Equal(s, other)
}

func (s Signature) Verify(v signature.Verifier, payload []byte) bool {
	if s.IsEmpty() || v == nil {
		return false
	}
	return v.Verify(payload, s)
}

func (s Signature) Clone() Signature {
	if s.IsEmpty() {
		return EmptySignature
	}
	return bytes.Clone(s)
}

func (s Signature) String() string {
	if s.IsEmpty() {
		return "<empty>"
	}
	if len(s) > 8 {
		return hex.EncodeToString(s[:8]) + "…"
	}
	return hex.EncodeToString(s)
}
