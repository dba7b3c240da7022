package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secure_chat/internal/codec"
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
	"secure_chat/internal/protocol/chain"
	"secure_chat/internal/protocol/lastseen"
	"secure_chat/internal/utils/log"
)

type (
	// KeySource resolves a profile id to its registered public key.
	KeySource interface {
		PublicKey(ctx context.Context, id uuid.UUID) (*model.PublicKey, error)
	}

	// PacketWriter delivers packets to the relay in call order.
	PacketWriter interface {
		WritePacket(p codec.Packet) error
	}

	// Line is one rendered chat line.
	Line struct {
		Author string
		Text   string
		State  chain.ValidationState
		System bool
	}

	// Conversation is the client side of the chat protocol. Validators are kept per sender.
	Conversation struct {
		// wmu orders window changes with the packets that carry them.
		wmu sync.Mutex
		mu  sync.Mutex

		self      uuid.UUID
		encoder   chain.Encoder
		sendChain *chain.State
		window    *lastseen.Window

		keys          KeySource
		expiry        model.Expiry
		enforceSecure bool
		peers         map[uuid.UUID]*peer

		now func() time.Time
	}

	peer struct {
		name      string
		verifier  signature.Verifier
		validator chain.Validator

		// signer timestamp of the newest accepted message
		lastAccepted time.Time
	}
)

// NewConversation signs outgoing messages with signer, or sends them unsigned when signer is nil.
func NewConversation(self uuid.UUID, signer signature.Signer, keys KeySource, expiry model.Expiry, enforceSecure bool) *Conversation {
	encoder := chain.UnsignedEncoder
	if signer != nil {
		encoder = chain.NewSigningEncoder(signer)
	}
	return &Conversation{
		self:          self,
		encoder:       encoder,
		sendChain:     chain.NewState(),
		window:        lastseen.NewWindow(),
		keys:          keys,
		expiry:        expiry,
		enforceSecure: enforceSecure,
		peers:         make(map[uuid.UUID]*peer),
		now:           time.Now,
	}
}

// Pack builds the chat packet for text, citing and acknowledging the current window.
func (c *Conversation) Pack(text string) (codec.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	signer := model.NewSigner(c.self, c.now())
	body := model.NewMessageBody(model.PlainContent(text), signer, c.window.Snapshot())
	msg, err := c.encoder.Pack(c.sendChain, signer, body)
	if err != nil {
		return codec.Packet{}, fmt.Errorf("pack message: %w", err)
	}
	return codec.NewChatPacket(msg, c.window.Update()), nil
}

// Send packs text and writes it before any other packet can change the window.
func (c *Conversation) Send(w PacketWriter, text string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	p, err := c.Pack(text)
	if err != nil {
		return err
	}
	return w.WritePacket(p)
}

// Handle receives p and writes its acknowledgment, if any, in the same critical section as Send.
func (c *Conversation) Handle(ctx context.Context, w PacketWriter, p codec.Packet) (*Line, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	line, ack, err := c.Receive(ctx, p)
	if err != nil {
		return nil, err
	}
	if ack != nil {
		if err := w.WritePacket(*ack); err != nil {
			return line, fmt.Errorf("send acknowledgment: %w", err)
		}
	}
	return line, nil
}

// Receive validates an inbound packet. It returns the line to render, if any, and the
// acknowledgment to send back, if any.
func (c *Conversation) Receive(ctx context.Context, p codec.Packet) (*Line, *codec.Packet, error) {
	switch p.Type {
	case codec.PacketMessage:
		return c.receiveMessage(ctx, *p.Message)
	case codec.PacketHeader:
		ack, err := c.receiveHeader(ctx, *p.Header)
		return nil, ack, err
	default:
		return nil, nil, fmt.Errorf("unexpected %s packet from relay", p.Type)
	}
}

func (c *Conversation) receiveMessage(ctx context.Context, m model.ChatMessage) (*Line, *codec.Packet, error) {
	if m.Signer().IsSystem() {
		return &Line{Text: m.DisplayContent(), State: chain.NotSecure, System: true}, nil, nil
	}

	p, err := c.peerFor(ctx, m.Header.Sender)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.restartIfNewChain(p, m)
	state := p.validator.ValidateMessage(m)
	if state == chain.BrokenChain {
		log.Warn("broken chat chain", zap.String("sender", p.name), zap.Stringer("signature", m.HeaderSignature))
		return &Line{Author: p.name, Text: "message could not be verified", State: state}, nil, nil
	}
	if m.Body.Timestamp.After(p.lastAccepted) {
		p.lastAccepted = m.Body.Timestamp
	}

	ack := c.acknowledge(m.ToLastSeenEntry())
	if m.HasExpiredClient(c.now(), c.expiry) || m.IsFullyFiltered() {
		return nil, ack, nil
	}
	return &Line{Author: p.name, Text: m.DisplayContent(), State: state}, ack, nil
}

func (c *Conversation) receiveHeader(ctx context.Context, n model.HeaderNotice) (*codec.Packet, error) {
	p, err := c.peerFor(ctx, n.Header.Sender)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if state := p.validator.ValidateHeader(n.Header, n.HeaderSignature, n.BodyHash); state == chain.BrokenChain {
		log.Warn("broken chat chain", zap.String("sender", p.name), zap.Stringer("signature", n.HeaderSignature))
		return nil, nil
	}
	return c.acknowledge(n.ToLastSeenEntry()), nil
}

// restartIfNewChain gives a sender that reconnected a fresh validator. The chain start is
// still verified against the sender's key. A broken chain is never restarted, and a chain start
// must be signed after the newest message already accepted from that sender. Header notices
// carry no timestamp and never restart a chain.
func (c *Conversation) restartIfNewChain(p *peer, m model.ChatMessage) {
	if m.Header.HasPrevious() || m.HeaderSignature.IsEmpty() {
		return
	}
	if kb, ok := p.validator.(*chain.KeyBased); ok && kb.Broken() {
		return
	}
	if !m.Body.Timestamp.After(p.lastAccepted) {
		return
	}
	p.validator = chain.NewValidator(p.verifier, c.enforceSecure)
}

func (c *Conversation) acknowledge(e model.LastSeenEntry, ok bool) *codec.Packet {
	if !ok {
		return nil
	}
	c.window.Push(e)
	ack := codec.NewAckPacket(c.window.Update())
	return &ack
}

func (c *Conversation) peerFor(ctx context.Context, id uuid.UUID) (*peer, error) {
	c.mu.Lock()
	p, ok := c.peers[id]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	key, err := c.keys.PublicKey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch key of %s: %w", id, err)
	}
	p = &peer{name: key.Name}
	if len(key.PublicKey) > 0 {
		v, err := signature.NewEd25519Verifier(key.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("key of %s: %w", id, err)
		}
		p.verifier = v
	}
	p.validator = chain.NewValidator(p.verifier, c.enforceSecure)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.peers[id]; ok {
		return existing, nil
	}
	c.peers[id] = p
	return p, nil
}
