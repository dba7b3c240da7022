package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure_chat/internal/codec"
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
	"secure_chat/internal/protocol/chain"
	"secure_chat/internal/protocol/lastseen"
)

type keyBook map[uuid.UUID]*model.PublicKey

func (b keyBook) PublicKey(_ context.Context, id uuid.UUID) (*model.PublicKey, error) {
	pk, ok := b[id]
	if !ok {
		return nil, ErrUnknownProfile
	}
	return pk, nil
}

// join registers name in book and returns its conversation.
func (b keyBook) join(t *testing.T, name string, signed bool) *Conversation {
	t.Helper()
	id := uuid.New()
	pk := &model.PublicKey{ProfileID: id.String(), Name: name}

	var signer signature.Signer
	if signed {
		pub, priv, err := signature.NewEd25519Keypair()
		require.NoError(t, err)
		s, err := signature.NewEd25519Signer(priv)
		require.NoError(t, err)
		pk.PublicKey = pub
		signer = s
	}
	b[id] = pk
	return NewConversation(id, signer, b, model.DefaultExpiry, false)
}

func (b keyBook) rejoin(t *testing.T, c *Conversation, signer signature.Signer) *Conversation {
	t.Helper()
	return NewConversation(c.self, signer, b, model.DefaultExpiry, false)
}

func packMessage(t *testing.T, c *Conversation, text string) model.ChatMessage {
	t.Helper()
	p, err := c.Pack(text)
	require.NoError(t, err)
	require.Equal(t, codec.PacketChat, p.Type)
	return p.Chat.Message
}

func TestConversationReceivesSignedMessages(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	for _, text := range []string{"hello", "how are you", "still here"} {
		msg := packMessage(t, alice, text)
		line, ack, err := bob.Receive(ctx, codec.NewMessagePacket(msg))
		require.NoError(t, err)

		require.NotNil(t, line)
		assert.Equal(t, Line{Author: "alice", Text: text, State: chain.Secure}, *line)

		require.NotNil(t, ack)
		require.Equal(t, codec.PacketAck, ack.Type)
		require.NotNil(t, ack.Ack.LastReceived)
		assert.True(t, ack.Ack.LastReceived.Signature.Equal(msg.HeaderSignature))
		assert.Equal(t, 1, ack.Ack.LastSeen.Len())
	}
}

func TestConversationCitesWindowWhenSending(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	fromAlice := packMessage(t, alice, "ping")
	_, _, err := bob.Receive(ctx, codec.NewMessagePacket(fromAlice))
	require.NoError(t, err)

	p, err := bob.Pack("pong")
	require.NoError(t, err)

	cited := p.Chat.Message.Body.LastSeen
	require.Equal(t, 1, cited.Len())
	assert.Equal(t, alice.self, cited.Entries[0].ProfileID)
	assert.True(t, cited.Entries[0].Signature.Equal(fromAlice.HeaderSignature))
	require.NotNil(t, p.Chat.Update.LastReceived)
	assert.True(t, p.Chat.Update.LastSeen.Entries[0].Equal(cited.Entries[0]))
}

func TestConversationBrokenChainIsSticky(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	_, _, err := bob.Receive(ctx, codec.NewMessagePacket(packMessage(t, alice, "one")))
	require.NoError(t, err)

	forged := packMessage(t, alice, "two")
	forged.Header.PreviousSignature = model.Signature([]byte("not the previous signature"))
	line, ack, err := bob.Receive(ctx, codec.NewMessagePacket(forged))
	require.NoError(t, err)
	require.NotNil(t, line)
	assert.Equal(t, chain.BrokenChain, line.State)
	assert.NotContains(t, line.Text, "two")
	assert.Nil(t, ack)

	line, ack, err = bob.Receive(ctx, codec.NewMessagePacket(packMessage(t, alice, "three")))
	require.NoError(t, err)
	assert.Equal(t, chain.BrokenChain, line.State)
	assert.Nil(t, ack)
}

func TestConversationRestartsChainOnReconnect(t *testing.T) {
	book := keyBook{}
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	pub, priv, err := signature.NewEd25519Keypair()
	require.NoError(t, err)
	signer, err := signature.NewEd25519Signer(priv)
	require.NoError(t, err)
	id := uuid.New()
	book[id] = &model.PublicKey{ProfileID: id.String(), Name: "alice", PublicKey: pub}
	alice := NewConversation(id, signer, book, model.DefaultExpiry, false)

	for _, text := range []string{"one", "two"} {
		line, _, err := bob.Receive(ctx, codec.NewMessagePacket(packMessage(t, alice, text)))
		require.NoError(t, err)
		assert.Equal(t, chain.Secure, line.State)
	}

	alice = book.rejoin(t, alice, signer)
	alice.now = func() time.Time { return time.Now().Add(time.Second) }
	line, _, err := bob.Receive(ctx, codec.NewMessagePacket(packMessage(t, alice, "back")))
	require.NoError(t, err)
	assert.Equal(t, chain.Secure, line.State)

	// a fresh chain signed with another key is still rejected
	_, otherPriv, err := signature.NewEd25519Keypair()
	require.NoError(t, err)
	other, err := signature.NewEd25519Signer(otherPriv)
	require.NoError(t, err)
	impostor := book.rejoin(t, alice, other)
	impostor.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	line, _, err = bob.Receive(ctx, codec.NewMessagePacket(packMessage(t, impostor, "hi")))
	require.NoError(t, err)
	assert.Equal(t, chain.BrokenChain, line.State)
}

func TestConversationHeaderNotice(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	notice := packMessage(t, alice, "filtered away").Notice()
	line, ack, err := bob.Receive(ctx, codec.NewHeaderPacket(notice))
	require.NoError(t, err)
	assert.Nil(t, line)
	require.NotNil(t, ack)
	assert.True(t, ack.Ack.LastReceived.Signature.Equal(notice.HeaderSignature))

	// the notice keeps the chain linked for the next full message
	line, _, err = bob.Receive(ctx, codec.NewMessagePacket(packMessage(t, alice, "visible")))
	require.NoError(t, err)
	assert.Equal(t, chain.Secure, line.State)
}

func TestConversationSystemAndUnsignedMessages(t *testing.T) {
	book := keyBook{}
	bob := book.join(t, "bob", true)
	carol := book.join(t, "carol", false)
	ctx := context.Background()

	line, ack, err := bob.Receive(ctx, codec.NewMessagePacket(model.SystemMessage("carol joined the chat", time.Now())))
	require.NoError(t, err)
	assert.True(t, line.System)
	assert.Equal(t, "carol joined the chat", line.Text)
	assert.Nil(t, ack)

	msg := packMessage(t, carol, "no key")
	assert.True(t, msg.HeaderSignature.IsEmpty())
	line, ack, err = bob.Receive(ctx, codec.NewMessagePacket(msg))
	require.NoError(t, err)
	assert.Equal(t, Line{Author: "carol", Text: "no key", State: chain.NotSecure}, *line)
	assert.Nil(t, ack)

	strict := NewConversation(uuid.New(), nil, book, model.DefaultExpiry, true)
	line, _, err = strict.Receive(ctx, codec.NewMessagePacket(packMessage(t, carol, "again")))
	require.NoError(t, err)
	assert.Equal(t, chain.BrokenChain, line.State)
}

func TestConversationHidesExpiredMessages(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	bob.now = func() time.Time { return time.Now().Add(model.DefaultExpiry.Client() + time.Minute) }

	line, ack, err := bob.Receive(context.Background(), codec.NewMessagePacket(packMessage(t, alice, "old")))
	require.NoError(t, err)
	assert.Nil(t, line)
	assert.NotNil(t, ack)
}

func TestConversationUnknownSender(t *testing.T) {
	book := keyBook{}
	bob := book.join(t, "bob", true)
	stranger := NewConversation(uuid.New(), nil, keyBook{}, model.DefaultExpiry, false)

	_, _, err := bob.Receive(context.Background(), codec.NewMessagePacket(packMessage(t, stranger, "who am i")))
	require.ErrorIs(t, err, ErrUnknownProfile)

	_, _, err = bob.Receive(context.Background(), codec.NewAckPacket(model.LastSeenUpdate{}))
	require.Error(t, err)
}

func TestConversationReplayedChainStartAfterBreak(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	first := packMessage(t, alice, "one")
	_, _, err := bob.Receive(ctx, codec.NewMessagePacket(first))
	require.NoError(t, err)

	forged := packMessage(t, alice, "two")
	forged.Header.PreviousSignature = model.Signature([]byte("not the previous signature"))
	line, _, err := bob.Receive(ctx, codec.NewMessagePacket(forged))
	require.NoError(t, err)
	require.Equal(t, chain.BrokenChain, line.State)

	line, ack, err := bob.Receive(ctx, codec.NewMessagePacket(first))
	require.NoError(t, err)
	assert.Equal(t, chain.BrokenChain, line.State)
	assert.NotEqual(t, "one", line.Text)
	assert.Nil(t, ack)
}

func TestConversationStaleChainStartIsRejected(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	first := packMessage(t, alice, "one")
	msgs := []model.ChatMessage{first, packMessage(t, alice, "two"), packMessage(t, alice, "three")}
	for _, m := range msgs {
		line, _, err := bob.Receive(ctx, codec.NewMessagePacket(m))
		require.NoError(t, err)
		require.Equal(t, chain.Secure, line.State)
	}

	// a chain start signed before the newest accepted message cannot restart the chain
	line, ack, err := bob.Receive(ctx, codec.NewMessagePacket(first))
	require.NoError(t, err)
	assert.Equal(t, chain.BrokenChain, line.State)
	assert.Nil(t, ack)
}

// relayView applies every written update to a relay-side tracker.
type relayView struct {
	mu        sync.Mutex
	tracker   *lastseen.Tracker
	types     []codec.PacketType
	anomalies []lastseen.ErrorSet

	beforeChat func()
	chatDelay  time.Duration
}

func newRelayView() *relayView {
	return &relayView{tracker: lastseen.NewTracker()}
}

func (r *relayView) WritePacket(p codec.Packet) error {
	if p.Type == codec.PacketChat {
		if f := r.beforeChat; f != nil {
			r.beforeChat = nil
			f()
		}
		time.Sleep(r.chatDelay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, p.Type)
	switch p.Type {
	case codec.PacketChat:
		r.anomalies = append(r.anomalies, r.tracker.ValidateAndUpdate(p.Chat.Update))
	case codec.PacketAck:
		r.anomalies = append(r.anomalies, r.tracker.ValidateAndUpdate(*p.Ack))
	}
	return nil
}

func (r *relayView) assertClean(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, errs := range r.anomalies {
		assert.True(t, errs.Empty(), "packet %d (%s): %s", i, r.types[i], errs)
	}
}

func TestConversationReceiveDuringSend(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	relay := newRelayView()
	msg := packMessage(t, alice, "hi")
	entry, ok := msg.ToLastSeenEntry()
	require.True(t, ok)
	relay.tracker.AddPending(entry)

	handled := make(chan error, 1)
	relay.beforeChat = func() {
		// a message arrives while the chat packet is on its way out
		go func() {
			_, err := bob.Handle(ctx, relay, codec.NewMessagePacket(msg))
			handled <- err
		}()
		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, bob.Send(relay, "hello"))
	require.NoError(t, <-handled)

	assert.Equal(t, []codec.PacketType{codec.PacketChat, codec.PacketAck}, relay.types)
	relay.assertClean(t)
}

func TestConversationConcurrentSendAndReceive(t *testing.T) {
	book := keyBook{}
	alice := book.join(t, "alice", true)
	bob := book.join(t, "bob", true)
	ctx := context.Background()

	relay := newRelayView()
	relay.chatDelay = time.Millisecond

	var incoming []model.ChatMessage
	for i := 0; i < 20; i++ {
		m := packMessage(t, alice, "tick")
		entry, _ := m.ToLastSeenEntry()
		relay.tracker.AddPending(entry)
		incoming = append(incoming, m)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, m := range incoming {
			_, err := bob.Handle(ctx, relay, codec.NewMessagePacket(m))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, bob.Send(relay, "tock"))
		}
	}()
	wg.Wait()

	relay.assertClean(t)
	assert.Equal(t, 0, relay.tracker.PendingCount())
}
