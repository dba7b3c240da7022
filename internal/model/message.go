package model

import (
	"time"

	"secure_chat/internal/cryptographic/signature"
)

const (
	DefaultServerExpiry = 5 * time.Minute
	DefaultClientGrace  = 2 * time.Minute
)

type (
	// Expiry holds the two message lifetimes. The client threshold is Server + ClientGrace.
	Expiry struct {
		Server      time.Duration
		ClientGrace time.Duration
	}

	// ChatMessage is a signed chat message as seen by one chain participant.
	// Values are immutable except through the copy-returning helpers.
	ChatMessage struct {
		Header          MessageHeader `json:"header"`
		HeaderSignature Signature     `json:"header_signature"`
		Body            MessageBody   `json:"body"`
		UnsignedContent *string       `json:"unsigned_content,omitempty"`
		FilterMask      FilterMask    `json:"filter_mask"`
	}

	// HeaderNotice is the header-only form of a message, sent to recipients that did not get the content.
	HeaderNotice struct {
		Header          MessageHeader `json:"header"`
		HeaderSignature Signature     `json:"header_signature"`
		BodyHash        []byte        `json:"body_hash"`
	}
)

var DefaultExpiry = Expiry{Server: DefaultServerExpiry, ClientGrace: DefaultClientGrace}

func (e Expiry) Client() time.Duration {
	return e.Server + e.ClientGrace
}

// SystemMessage builds an unsigned server-authored message.
func SystemMessage(text string, now time.Time) ChatMessage {
	signer := SystemSigner(now)
	return ChatMessage{
		Header: MessageHeader{Sender: signer.ProfileID},
		Body:   NewMessageBody(PlainContent(text), signer, LastSeenMessages{}),
	}
}

func (m ChatMessage) Signer() SignerIdentity {
	return SignerIdentity{
		ProfileID: m.Header.Sender,
		Timestamp: m.Body.Timestamp,
		Salt:      m.Body.Salt,
	}
}

func (m ChatMessage) SignablePayload() []byte {
	return m.Header.SignablePayload(m.Body.Hash())
}

// Verify is a one-shot signature check that touches no chain state.
func (m ChatMessage) Verify(v signature.Verifier) bool {
	return m.HeaderSignature.Verify(v, m.SignablePayload())
}

func (m ChatMessage) Filter(mask FilterMask) ChatMessage {
	m.FilterMask = mask
	return m
}

// FilterEnabled keeps the message's mask for recipients that filter and drops it for the rest.
func (m ChatMessage) FilterEnabled(enabled bool) ChatMessage {
	if enabled {
		return m
	}
	return m.Filter(PassThroughMask)
}

func (m ChatMessage) IsFullyFiltered() bool {
	return m.FilterMask.IsFullyFiltered()
}

// WithUnsignedContent overrides the displayed text only when it differs from the signed content.
func (m ChatMessage) WithUnsignedContent(text string) ChatMessage {
	if text == m.Body.Content.Display() {
		m.UnsignedContent = nil
		return m
	}
	m.UnsignedContent = &text
	return m
}

func (m ChatMessage) DisplayContent() string {
	text := m.Body.Content.Display()
	if m.UnsignedContent != nil {
		text = *m.UnsignedContent
	}
	return m.FilterMask.Apply(text)
}

func (m ChatMessage) HasExpired(now time.Time, ttl time.Duration) bool {
	return now.After(m.Body.Timestamp.Add(ttl))
}

func (m ChatMessage) HasExpiredServer(now time.Time, e Expiry) bool {
	return m.HasExpired(now, e.Server)
}

func (m ChatMessage) HasExpiredClient(now time.Time, e Expiry) bool {
	return m.HasExpired(now, e.Client())
}

// ToLastSeenEntry is false for messages that must never be cited in an acknowledgment.
func (m ChatMessage) ToLastSeenEntry() (LastSeenEntry, bool) {
	if m.Signer().IsSystem() || m.HeaderSignature.IsEmpty() {
		return LastSeenEntry{}, false
	}
	return LastSeenEntry{ProfileID: m.Header.Sender, Signature: m.HeaderSignature}, true
}

func (m ChatMessage) Notice() HeaderNotice {
	return HeaderNotice{
		Header:          m.Header,
		HeaderSignature: m.HeaderSignature,
		BodyHash:        m.Body.Hash(),
	}
}

func (n HeaderNotice) Verify(v signature.Verifier) bool {
	return n.HeaderSignature.Verify(v, n.Header.SignablePayload(n.BodyHash))
}

func (n HeaderNotice) ToLastSeenEntry() (LastSeenEntry, bool) {
	if n.HeaderSignature.IsEmpty() {
		return LastSeenEntry{}, false
	}
	return LastSeenEntry{ProfileID: n.Header.Sender, Signature: n.HeaderSignature}, true
}
