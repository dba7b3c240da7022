package chain

import (
	"errors"
	"fmt"

	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
)

var ErrNoSigner = errors.New("chain: encoder has no signer")

// State is one direction of one connection's chain: the last signature produced or observed.
// It is not synchronised; the owning connection serialises access.
type State struct {
	previous model.Signature
}

func NewState() *State {
	return &State{}
}

func (s *State) Previous() model.Signature {
	return s.previous
}

func (s *State) advance(sig model.Signature) {
	s.previous = sig.Clone()
}

type (
	// Encoder turns a signer and a body into a linked ChatMessage.
	Encoder interface {
		Pack(state *State, signer model.SignerIdentity, body model.MessageBody) (model.ChatMessage, error)
	}

	signingEncoder struct {
		signer signature.Signer
	}

	unsignedEncoder struct{}
)

// UnsignedEncoder is used by system-origin or keyless senders.
var UnsignedEncoder Encoder = unsignedEncoder{}

func NewSigningEncoder(signer signature.Signer) Encoder {
	return &signingEncoder{signer: signer}
}

func (e *signingEncoder) Pack(state *State, signer model.SignerIdentity, body model.MessageBody) (model.ChatMessage, error) {
	if e.signer == nil {
		return model.ChatMessage{}, ErrNoSigner
	}

	header := model.MessageHeader{
		PreviousSignature: state.Previous(),
		Sender:            signer.ProfileID,
	}
	raw, err := e.signer.Sign(header.SignablePayload(body.Hash()))
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("sign chat header: %w", err)
	}
	if len(raw) == 0 {
		return model.ChatMessage{}, fmt.Errorf("sign chat header: signer returned no signature")
	}

	sig := model.Signature(raw)
	state.advance(sig)
	return model.ChatMessage{
		Header:          header,
		HeaderSignature: sig,
		Body:            body,
	}, nil
}

func (unsignedEncoder) Pack(_ *State, signer model.SignerIdentity, body model.MessageBody) (model.ChatMessage, error) {
	return model.ChatMessage{
		Header:          model.MessageHeader{Sender: signer.ProfileID},
		HeaderSignature: model.EmptySignature,
		Body:            body,
	}, nil
}

// Unpack rebuilds a received message without re-signing and advances the receive pointer.
// Unsigned messages leave the pointer untouched.
func Unpack(state *State, header model.MessageHeader, sig model.Signature, body model.MessageBody) model.ChatMessage {
	if !sig.IsEmpty() {
		state.advance(sig)
	}
	return model.ChatMessage{
		Header:          header,
		HeaderSignature: sig,
		Body:            body,
	}
}

// UnpackLinked rebuilds a message whose sender did not transmit the previous signature,
// taking it from the receive pointer instead.
func UnpackLinked(state *State, sender model.SignerIdentity, sig model.Signature, body model.MessageBody) model.ChatMessage {
	header := model.MessageHeader{
		PreviousSignature: state.Previous(),
		Sender:            sender.ProfileID,
	}
	return Unpack(state, header, sig, body)
}
