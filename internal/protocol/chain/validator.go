package chain

import (
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
)

type ValidationState uint8

const (
	Secure ValidationState = iota
	NotSecure
	BrokenChain
)

func (s ValidationState) String() string {
	switch s {
	case Secure:
		return "secure"
	case NotSecure:
		return "not_secure"
	case BrokenChain:
		return "broken_chain"
	default:
		return "unknown"
	}
}

// Validator checks inbound messages from one sender on one connection. Both implementations
// mutate internal state on every call.
type Validator interface {
	ValidateHeader(header model.MessageHeader, sig model.Signature, bodyHash []byte) ValidationState
	ValidateMessage(msg model.ChatMessage) ValidationState
	validator()
}

type (
	// KeyBased verifies signatures and chain continuity. A single failure is permanent.
	KeyBased struct {
		verifier      signature.Verifier
		lastSignature model.Signature
		broken        bool
	}

	// Unsigned handles senders without a public key.
	Unsigned struct {
		enforceSecure bool
	}
)

// NewValidator picks the key-based policy when a verifier is available.
func NewValidator(verifier signature.Verifier, enforceSecure bool) Validator {
	if verifier == nil {
		return NewUnsigned(enforceSecure)
	}
	return NewKeyBased(verifier)
}

func NewKeyBased(verifier signature.Verifier) *KeyBased {
	return &KeyBased{verifier: verifier}
}

func NewUnsigned(enforceSecure bool) *Unsigned {
	return &Unsigned{enforceSecure: enforceSecure}
}

func (v *KeyBased) validator() {}
func (v *Unsigned) validator() {}

func (v *KeyBased) Broken() bool {
	return v.broken
}

func (v *KeyBased) ValidateHeader(header model.MessageHeader, sig model.Signature, bodyHash []byte) ValidationState {
	if v.broken {
		return BrokenChain
	}
	notice := model.HeaderNotice{Header: header, HeaderSignature: sig, BodyHash: bodyHash}
	if !v.continues(header, sig) || !notice.Verify(v.verifier) {
		v.broken = true
		return BrokenChain
	}
	v.lastSignature = sig.Clone()
	return Secure
}

func (v *KeyBased) ValidateMessage(msg model.ChatMessage) ValidationState {
	return v.ValidateHeader(msg.Header, msg.HeaderSignature, msg.Body.Hash())
}

func (v *KeyBased) continues(header model.MessageHeader, sig model.Signature) bool {
	if sig.IsEmpty() {
		return false
	}
	// the first message of a session may reference history from an earlier one
	if v.lastSignature.IsEmpty() {
		return true
	}
	if sig.Equal(v.lastSignature) {
		return true
	}
	return header.PreviousSignature.Equal(v.lastSignature)
}

func (v *Unsigned) ValidateHeader(_ model.MessageHeader, sig model.Signature, _ []byte) ValidationState {
	if !sig.IsEmpty() || v.enforceSecure {
		return BrokenChain
	}
	return NotSecure
}

func (v *Unsigned) ValidateMessage(msg model.ChatMessage) ValidationState {
	return v.ValidateHeader(msg.Header, msg.HeaderSignature, nil)
}
