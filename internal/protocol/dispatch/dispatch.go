package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secure_chat/internal/model"
	"secure_chat/internal/utils/log"
)

type (
	// Recipient is one connected participant that can receive messages.
	Recipient interface {
		ProfileID() uuid.UUID
		FilterEnabled() bool
		SendMessage(ctx context.Context, msg model.ChatMessage) error
		SendHeader(ctx context.Context, notice model.HeaderNotice) error
	}

	RecipientList interface {
		Recipients() []Recipient
	}

	// Outgoing fans one message out. SendHeadersToRemaining is best effort and never reports failure.
	Outgoing interface {
		SendTo(ctx context.Context, r Recipient) error
		SendHeadersToRemaining(ctx context.Context, list RecipientList)
	}

	// notTracked serves system-origin messages, which have no chain to keep continuous.
	notTracked struct {
		msg model.ChatMessage
	}

	// tracked remembers who got the full content so everyone else can be sent the header.
	tracked struct {
		msg model.ChatMessage

		mu       sync.Mutex
		received map[uuid.UUID]struct{}
		wg       sync.WaitGroup
	}
)

func New(msg model.ChatMessage) Outgoing {
	if msg.Signer().IsSystem() {
		return &notTracked{msg: msg}
	}
	return &tracked{msg: msg, received: make(map[uuid.UUID]struct{})}
}

func (o *notTracked) SendTo(ctx context.Context, r Recipient) error {
	filtered := o.msg.FilterEnabled(r.FilterEnabled())
	if filtered.IsFullyFiltered() {
		return nil
	}
	return r.SendMessage(ctx, filtered)
}

func (o *notTracked) SendHeadersToRemaining(context.Context, RecipientList) {}

func (o *tracked) SendTo(ctx context.Context, r Recipient) error {
	filtered := o.msg.FilterEnabled(r.FilterEnabled())
	if filtered.IsFullyFiltered() {
		return nil
	}
	if err := r.SendMessage(ctx, filtered); err != nil {
		return err
	}

	o.mu.Lock()
	o.received[r.ProfileID()] = struct{}{}
	o.mu.Unlock()
	return nil
}

func (o *tracked) hasFullMessage(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.received[id]
	return ok
}

func (o *tracked) SendHeadersToRemaining(ctx context.Context, list RecipientList) {
	notice := o.msg.Notice()
	for _, r := range list.Recipients() {
		if o.hasFullMessage(r.ProfileID()) {
			continue
		}

		o.wg.Add(1)
		go func(r Recipient) {
			defer o.wg.Done()
			if err := r.SendHeader(ctx, notice); err != nil {
				log.Debug("header follow-up failed",
					zap.Stringer("recipient", r.ProfileID()),
					zap.Stringer("sender", notice.Header.Sender),
					zap.Error(err))
			}
		}(r)
	}
}

// Broadcast sends msg to every recipient and then the header to those that got nothing.
// The first send error is returned; header follow-ups never affect the result.
func Broadcast(ctx context.Context, msg model.ChatMessage, list RecipientList) (Outgoing, error) {
	out := New(msg)
	var firstErr error
	for _, r := range list.Recipients() {
		if err := out.SendTo(ctx, r); err != nil {
			log.Warn("send chat message failed",
				zap.Stringer("recipient", r.ProfileID()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	out.SendHeadersToRemaining(ctx, list)
	return out, firstErr
}

// Wait blocks until header follow-ups started so far have finished. Only tracked messages start any.
func Wait(o Outgoing) {
	if t, ok := o.(*tracked); ok {
		t.wg.Wait()
	}
}
