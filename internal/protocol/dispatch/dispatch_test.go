package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"secure_chat/internal/model"
	"secure_chat/internal/utils/log"
)

type mockRecipient struct {
	mock.Mock
	id     uuid.UUID
	filter bool
}

func newRecipient(filter bool) *mockRecipient {
	return &mockRecipient{id: uuid.New(), filter: filter}
}

func (m *mockRecipient) ProfileID() uuid.UUID { return m.id }
func (m *mockRecipient) FilterEnabled() bool  { return m.filter }

func (m *mockRecipient) SendMessage(ctx context.Context, msg model.ChatMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockRecipient) SendHeader(ctx context.Context, notice model.HeaderNotice) error {
	return m.Called(ctx, notice).Error(0)
}

type recipients []*mockRecipient

func (rs recipients) Recipients() []Recipient {
	out := make([]Recipient, 0, len(rs))
	for _, r := range rs {
		out = append(out, r)
	}
	return out
}

func playerMessage(mask model.FilterMask) model.ChatMessage {
	signer := model.NewSigner(uuid.New(), time.Now())
	return model.ChatMessage{
		Header:          model.MessageHeader{Sender: signer.ProfileID},
		HeaderSignature: model.Signature{1, 2, 3},
		Body:            model.NewMessageBody(model.PlainContent("some text"), signer, model.LastSeenMessages{}),
		FilterMask:      mask,
	}
}

func TestTrackedSendsHeadersToFilteredRecipients(t *testing.T) {
	ctx := context.Background()
	msg := playerMessage(model.FullyFilteredMask)

	open := newRecipient(false)
	strict := newRecipient(true)
	open.On("SendMessage", ctx, mock.MatchedBy(func(m model.ChatMessage) bool {
		return !m.IsFullyFiltered()
	})).Return(nil)
	strict.On("SendHeader", ctx, mock.MatchedBy(func(n model.HeaderNotice) bool {
		return n.HeaderSignature.Equal(msg.HeaderSignature)
	})).Return(nil)

	out, err := Broadcast(ctx, msg, recipients{open, strict})
	Wait(out)

	assert.NoError(t, err)
	open.AssertExpectations(t)
	strict.AssertExpectations(t)
	open.AssertNotCalled(t, "SendHeader", mock.Anything, mock.Anything)
	strict.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestTrackedFailedSendFallsBackToHeader(t *testing.T) {
	ctx := context.Background()
	msg := playerMessage(model.PassThroughMask)

	flaky := newRecipient(false)
	flaky.On("SendMessage", ctx, mock.Anything).Return(errors.New("queue full"))
	flaky.On("SendHeader", ctx, mock.Anything).Return(errors.New("queue still full"))

	out, err := Broadcast(ctx, msg, recipients{flaky})
	Wait(out)

	assert.EqualError(t, err, "queue full")
	flaky.AssertNumberOfCalls(t, "SendHeader", 1)
}

func TestHeaderFailureDoesNotAffectResult(t *testing.T) {
	ctx := context.Background()
	msg := playerMessage(model.FullyFilteredMask)

	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(log.ReplaceLogger(zap.New(core)))

	r := newRecipient(true)
	r.On("SendHeader", ctx, mock.Anything).Return(errors.New("closed"))

	out, err := Broadcast(ctx, msg, recipients{r})
	Wait(out)

	assert.NoError(t, err)
	r.AssertExpectations(t)

	failed := logs.FilterMessage("header follow-up failed").All()
	if assert.Len(t, failed, 1) {
		assert.Equal(t, r.id.String(), failed[0].ContextMap()["recipient"])
		assert.Equal(t, "closed", failed[0].ContextMap()["error"])
	}
}

func TestNotTrackedSystemMessage(t *testing.T) {
	ctx := context.Background()
	msg := model.SystemMessage("server restarting", time.Now()).Filter(model.FullyFilteredMask)

	open := newRecipient(false)
	strict := newRecipient(true)
	open.On("SendMessage", ctx, mock.Anything).Return(nil)

	out, err := Broadcast(ctx, msg, recipients{open, strict})
	Wait(out)

	assert.NoError(t, err)
	_, isTracked := out.(*tracked)
	assert.False(t, isTracked)
	open.AssertExpectations(t)
	strict.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	strict.AssertNotCalled(t, "SendHeader", mock.Anything, mock.Anything)
}
