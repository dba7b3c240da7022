package lastseen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure_chat/internal/model"
)

var nextSig byte

func newEntry(profile uuid.UUID) model.LastSeenEntry {
	nextSig++
	return model.LastSeenEntry{ProfileID: profile, Signature: model.Signature{nextSig, 0xaa}}
}

func update(lastReceived *model.LastSeenEntry, entries ...model.LastSeenEntry) model.LastSeenUpdate {
	return model.LastSeenUpdate{LastSeen: model.NewLastSeenMessages(entries...), LastReceived: lastReceived}
}

func TestPendingPruning(t *testing.T) {
	tr := NewTracker()
	a, b, c := newEntry(uuid.New()), newEntry(uuid.New()), newEntry(uuid.New())
	tr.AddPending(a)
	tr.AddPending(b)
	tr.AddPending(c)

	errs := tr.ValidateAndUpdate(update(&b, b, a))
	assert.True(t, errs.Empty(), errs.String())

	pending := tr.Pending()
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Equal(c))
	assert.Equal(t, 2, tr.LastSeen().Len())
}

func TestLastReceivedAloneAcknowledges(t *testing.T) {
	tr := NewTracker()
	a, b, c := newEntry(uuid.New()), newEntry(uuid.New()), newEntry(uuid.New())
	tr.AddPending(a)
	tr.AddPending(b)
	tr.AddPending(c)

	errs := tr.ValidateAndUpdate(update(&b))
	assert.True(t, errs.Empty(), errs.String())
	require.Equal(t, 1, tr.PendingCount())
	assert.True(t, tr.Pending()[0].Equal(c))
}

func TestResubmittedSnapshotIsClean(t *testing.T) {
	tr := NewTracker()
	a, b := newEntry(uuid.New()), newEntry(uuid.New())
	tr.AddPending(a)
	tr.AddPending(b)

	require.True(t, tr.ValidateAndUpdate(update(&b, b, a)).Empty())
	errs := tr.ValidateAndUpdate(update(&b, b, a))
	assert.True(t, errs.Empty(), errs.String())
	assert.Zero(t, tr.PendingCount())
}

func TestWindowAcrossUpdates(t *testing.T) {
	tr := NewTracker()
	w := NewWindow()
	alice, bob := uuid.New(), uuid.New()

	send := func(e model.LastSeenEntry) {
		tr.AddPending(e)
		w.Push(e)
	}

	send(newEntry(alice))
	send(newEntry(bob))
	send(newEntry(alice))
	assert.True(t, tr.ValidateAndUpdate(w.Update()).Empty())
	assert.Zero(t, tr.PendingCount())

	for i := 0; i < 7; i++ {
		send(newEntry(uuid.New()))
		errs := tr.ValidateAndUpdate(w.Update())
		assert.True(t, errs.Empty(), "round %d: %s", i, errs)
	}

	// partially acknowledged: the last message is still in flight
	inFlight := newEntry(bob)
	tr.AddPending(inFlight)
	assert.True(t, tr.ValidateAndUpdate(w.Update()).Empty())
	assert.Equal(t, 1, tr.PendingCount())
}

func TestAnomalies(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		setup   func(t *testing.T, tr *Tracker) model.LastSeenUpdate
		want    []ErrorCondition
		pending int
	}{
		{
			name: "duplicated profiles",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				a1, a2 := newEntry(alice), newEntry(alice)
				tr.AddPending(a1)
				tr.AddPending(a2)
				return update(nil, a2, a1)
			},
			want: []ErrorCondition{DuplicatedProfiles},
		},
		{
			name: "unknown message in window",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				tr.AddPending(newEntry(alice))
				return update(nil, newEntry(bob))
			},
			want:    []ErrorCondition{UnknownMessages},
			pending: 1,
		},
		{
			name: "unknown last received",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				forged := newEntry(bob)
				return update(&forged)
			},
			want: []ErrorCondition{UnknownMessages},
		},
		{
			name: "last received older than window",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				a, b := newEntry(alice), newEntry(bob)
				tr.AddPending(a)
				tr.AddPending(b)
				return update(&a, b)
			},
			want: []ErrorCondition{UnknownMessages},
		},
		{
			name: "out of order",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				a, b := newEntry(alice), newEntry(bob)
				tr.AddPending(a)
				tr.AddPending(b)
				return update(nil, a, b)
			},
			want: []ErrorCondition{OutOfOrder},
		},
		{
			name: "same entry listed twice is ambiguous",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				a := newEntry(alice)
				tr.AddPending(a)
				return update(nil, a, a)
			},
			want: []ErrorCondition{OutOfOrder, DuplicatedProfiles},
		},
		{
			name: "removed messages",
			setup: func(t *testing.T, tr *Tracker) model.LastSeenUpdate {
				a, b := newEntry(alice), newEntry(bob)
				tr.AddPending(a)
				tr.AddPending(b)
				require.True(t, tr.ValidateAndUpdate(update(&b, b, a)).Empty())
				return update(&b, b)
			},
			want: []ErrorCondition{RemovedMessages},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			errs := tr.ValidateAndUpdate(tt.setup(t, tr))
			assert.Equal(t, tt.want, errs.Conditions(), errs.String())
			assert.Equal(t, tt.pending, tr.PendingCount())
		})
	}
}

func TestWindowKeepsOnePerProfile(t *testing.T) {
	w := NewWindow()
	alice := uuid.New()
	first := newEntry(alice)
	w.Push(first)
	for i := 0; i < 6; i++ {
		w.Push(newEntry(uuid.New()))
	}
	latest := newEntry(alice)
	w.Push(latest)

	snap := w.Snapshot()
	require.Equal(t, model.LastSeenMaxEntries, snap.Len())
	assert.True(t, snap.Entries[0].Equal(latest))
	assert.False(t, snap.HasDuplicateProfiles())
	assert.Equal(t, -1, snap.IndexOf(first))

	u := w.Update()
	require.NotNil(t, u.LastReceived)
	assert.True(t, u.LastReceived.Equal(latest))
}

func TestErrorSetString(t *testing.T) {
	var s ErrorSet
	assert.Equal(t, "[]", s.String())
	s.add(UnknownMessages)
	s.add(OutOfOrder)
	assert.Equal(t, "[out_of_order,unknown_messages]", s.String())
	assert.True(t, s.Has(OutOfOrder))
	assert.False(t, s.Has(RemovedMessages))
}
