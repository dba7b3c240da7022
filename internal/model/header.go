package model

import (
	"github.com/google/uuid"
)

// MessageHeader binds a message to its sender and its predecessor in the sender's chain.
type MessageHeader struct {
	PreviousSignature Signature `json:"previous_signature,omitempty"`
	Sender            uuid.UUID `json:"sender"`
}

func (h MessageHeader) HasPrevious() bool {
	return !h.PreviousSignature.IsEmpty()
}

// SignablePayload is exactly what gets signed: previous ‖ sender ‖ body hash.
func (h MessageHeader) SignablePayload(bodyHash []byte) []byte {
	out := make([]byte, 0, len(h.PreviousSignature)+len(h.Sender)+len(bodyHash))
	out = append(out, h.PreviousSignature...)
	out = append(out, h.Sender[:]...)
	out = append(out, bodyHash...)
	return out
}
