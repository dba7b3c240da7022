package lastseen

import (
	"math"

	"secure_chat/internal/model"
)

type indexKind uint8

const (
	unknown indexKind = iota
	alreadySeen
	pending
)

// index locates an acknowledged entry either in the accepted window (ordinal 0 = most recent)
// or in the pending queue (ordinal 0 = oldest).
type index struct {
	kind    indexKind
	ordinal int
}

// rank orders resolved entries in time: every pending entry is newer than every accepted one.
func (i index) rank() int {
	if i.kind == pending {
		return i.ordinal
	}
	return -i.ordinal - 1
}

// Tracker validates one connection's acknowledgment updates against what was sent to it.
// It is not synchronised.
type Tracker struct {
	lastSeen     model.LastSeenMessages
	lastReceived *model.LastSeenEntry
	pending      []model.LastSeenEntry
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// AddPending records a message sent on this connection that the remote has yet to acknowledge.
func (t *Tracker) AddPending(e model.LastSeenEntry) {
	t.pending = append(t.pending, model.LastSeenEntry{ProfileID: e.ProfileID, Signature: e.Signature.Clone()})
}

func (t *Tracker) PendingCount() int {
	return len(t.pending)
}

func (t *Tracker) Pending() []model.LastSeenEntry {
	out := make([]model.LastSeenEntry, len(t.pending))
	copy(out, t.pending)
	return out
}

func (t *Tracker) LastSeen() model.LastSeenMessages {
	return model.NewLastSeenMessages(t.lastSeen.Entries...)
}

func (t *Tracker) resolve(e model.LastSeenEntry) index {
	if i := t.lastSeen.IndexOf(e); i >= 0 {
		return index{kind: alreadySeen, ordinal: i}
	}
	for i, p := range t.pending {
		if p.Equal(e) {
			return index{kind: pending, ordinal: i}
		}
	}
	return index{kind: unknown}
}

// ValidateAndUpdate checks update against the accepted window and the pending queue, prunes
// acknowledged pending entries and adopts the update's window. The returned set may be empty.
func (t *Tracker) ValidateAndUpdate(update model.LastSeenUpdate) ErrorSet {
	var errs ErrorSet

	list := update.LastSeen.Entries
	if len(list) > model.LastSeenMaxEntries {
		list = list[:model.LastSeenMaxEntries]
	}
	if len(list) < t.lastSeen.Len() {
		errs.add(RemovedMessages)
	}

	// Walk newest to oldest; ranks must strictly decrease. Equal ranks are ambiguous and rejected.
	lowest := math.MaxInt
	highestPending := -1
	for _, e := range list {
		idx := t.resolve(e)
		if idx.kind == unknown {
			errs.add(UnknownMessages)
			continue
		}
		if r := idx.rank(); r < lowest {
			lowest = r
		} else {
			errs.add(OutOfOrder)
		}
		if idx.kind == pending && idx.ordinal > highestPending {
			highestPending = idx.ordinal
		}
	}

	if lr := update.LastReceived; lr != nil {
		idx := t.resolve(*lr)
		switch {
		case idx.kind == pending && idx.ordinal >= highestPending:
			highestPending = idx.ordinal
		case highestPending < 0 && t.lastReceived != nil && t.lastReceived.Equal(*lr):
			// the remote repeated its previous acknowledgment
		default:
			errs.add(UnknownMessages)
		}
	}

	if highestPending >= 0 {
		t.pending = append([]model.LastSeenEntry(nil), t.pending[highestPending+1:]...)
	}

	accepted := model.NewLastSeenMessages(list...)
	if accepted.HasDuplicateProfiles() {
		errs.add(DuplicatedProfiles)
	}

	t.lastSeen = accepted
	if update.LastReceived != nil {
		lr := *update.LastReceived
		t.lastReceived = &lr
	}
	return errs
}
