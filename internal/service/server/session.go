package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secure_chat/internal/codec"
	"secure_chat/internal/model"
	"secure_chat/internal/protocol/chain"
	"secure_chat/internal/protocol/lastseen"
	"secure_chat/internal/utils/log"
)

const sendQueueSize = 256

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendQueueFull  = errors.New("session send queue full")
	errPendingTooLong = errors.New("too many unacknowledged messages")
)

// frameConn is the part of *websocket.Conn a session uses.
type frameConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type outbound struct {
	message *model.ChatMessage
	header  *model.HeaderNotice
}

// Session is one websocket connection. Its chain state, validator and tracker are only touched
// by the run goroutine.
type Session struct {
	profileID     uuid.UUID
	name          string
	filterEnabled bool

	server *HttpServer
	conn   frameConn

	recvChain *chain.State
	validator chain.Validator
	tracker   *lastseen.Tracker

	inbound  chan []byte
	outbound chan outbound
	done     chan struct{}
	once     sync.Once
}

func newSession(s *HttpServer, conn frameConn, profile *model.Profile, validator chain.Validator, filterEnabled bool) (*Session, error) {
	id, err := uuid.Parse(profile.ProfileID)
	if err != nil {
		return nil, err
	}
	return &Session{
		profileID:     id,
		name:          profile.Name,
		filterEnabled: filterEnabled,
		server:        s,
		conn:          conn,
		recvChain:     chain.NewState(),
		validator:     validator,
		tracker:       lastseen.NewTracker(),
		inbound:       make(chan []byte),
		outbound:      make(chan outbound, sendQueueSize),
		done:          make(chan struct{}),
	}, nil
}

func (c *Session) ProfileID() uuid.UUID {
	return c.profileID
}

func (c *Session) FilterEnabled() bool {
	return c.filterEnabled
}

func (c *Session) SendMessage(_ context.Context, msg model.ChatMessage) error {
	return c.enqueue(outbound{message: &msg})
}

func (c *Session) SendHeader(_ context.Context, notice model.HeaderNotice) error {
	return c.enqueue(outbound{header: &notice})
}

// enqueue never blocks; a full queue drops the send.
func (c *Session) enqueue(o outbound) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}

	select {
	case c.outbound <- o:
		return nil
	case <-c.done:
		return ErrSessionClosed
	default:
		c.server.metrics.DroppedSends.Inc()
		return ErrSendQueueFull
	}
}

func (c *Session) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
		c.server.unregister(c)
		log.Debug("session closed", zap.String("name", c.name))
	})
}

func (c *Session) Done() <-chan struct{} {
	return c.done
}

func (c *Session) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("worker web socket closed", zap.String("name", c.name), zap.Error(err))
			return
		}

		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}

func (c *Session) run(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.inbound:
			if err := c.handleFrame(ctx, data); err != nil {
				log.Warn("closing session", zap.String("name", c.name), zap.Error(err))
				return
			}
		case o := <-c.outbound:
			if err := c.deliver(o); err != nil {
				log.Warn("closing session", zap.String("name", c.name), zap.Error(err))
				return
			}
		}
	}
}

func (c *Session) deliver(o outbound) error {
	var (
		p     codec.Packet
		entry model.LastSeenEntry
		ok    bool
	)
	switch {
	case o.message != nil:
		p = codec.NewMessagePacket(*o.message)
		entry, ok = o.message.ToLastSeenEntry()
	case o.header != nil:
		p = codec.NewHeaderPacket(*o.header)
		entry, ok = o.header.ToLastSeenEntry()
	default:
		return nil
	}

	data, err := codec.EncodePacket(p)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}

	if ok {
		c.tracker.AddPending(entry)
		if c.tracker.PendingCount() > c.server.cfg.MaxPending {
			return errPendingTooLong
		}
	}
	return nil
}

func (c *Session) handleFrame(ctx context.Context, data []byte) error {
	p, err := codec.DecodePacket(data)
	if err != nil {
		log.Warn("drop malformed packet", zap.String("name", c.name), zap.Error(err))
		c.server.metrics.RejectedMessages.WithLabelValues("malformed").Inc()
		return nil
	}

	switch p.Type {
	case codec.PacketAck:
		c.handleAck(*p.Ack)
	case codec.PacketChat:
		c.handleAck(p.Chat.Update)
		c.handleChat(ctx, p.Chat.Message)
	default:
		log.Warn("unexpected packet from client", zap.String("name", c.name), zap.Stringer("type", p.Type))
	}
	return nil
}

func (c *Session) handleAck(update model.LastSeenUpdate) {
	errs := c.tracker.ValidateAndUpdate(update)
	if errs.Empty() {
		return
	}
	c.server.metrics.observeAnomalies(errs)
	log.Warn("last seen anomalies",
		zap.String("name", c.name),
		zap.Stringer("conditions", errs),
		zap.Int("pending", c.tracker.PendingCount()))
}

func (c *Session) handleChat(ctx context.Context, m model.ChatMessage) {
	now := time.Now()
	if m.Header.Sender != c.profileID {
		c.reject("sender_mismatch", "Chat message rejected: sender does not match this connection")
		return
	}
	if m.HasExpiredServer(now, c.server.cfg.Expiry()) {
		c.reject("expired", "Chat message rejected: message expired")
		return
	}

	msg := chain.Unpack(c.recvChain, m.Header, m.HeaderSignature, m.Body)
	state := c.validator.ValidateMessage(msg)
	c.server.metrics.observeValidation(state)
	if state == chain.BrokenChain {
		log.Warn("broken chat chain", zap.String("name", c.name), zap.Stringer("signature", msg.HeaderSignature))
		c.reject("broken_chain", "Chat message rejected: broken signature chain, reconnect to chat again")
		return
	}

	mask, err := c.server.filter.Filter(ctx, msg.Body.Content.Display())
	if err != nil {
		log.Error("content filter failed", zap.Error(err))
		mask = model.PassThroughMask
	}
	msg = msg.Filter(mask)
	if state == chain.NotSecure {
		log.Debug("relaying unsigned message", zap.String("name", c.name))
	}

	c.server.broadcast(ctx, msg)
}

func (c *Session) reject(reason, text string) {
	c.server.metrics.RejectedMessages.WithLabelValues(reason).Inc()
	if err := c.SendMessage(context.Background(), model.SystemMessage(text, time.Now())); err != nil {
		log.Debug("system notice not sent", zap.String("name", c.name), zap.Error(err))
	}
}
