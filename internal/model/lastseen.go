package model

import (
	"github.com/google/uuid"
)

// LastSeenMaxEntries caps the acknowledgment window.
const LastSeenMaxEntries = 5

type (
	LastSeenEntry struct {
		ProfileID uuid.UUID `json:"profile_id"`
		Signature Signature `json:"signature"`
	}

	// LastSeenMessages lists acknowledged messages, most recent first.
	LastSeenMessages struct {
		Entries []LastSeenEntry `json:"entries"`
	}

	// LastSeenUpdate is what a participant sends alongside its own message.
	LastSeenUpdate struct {
		LastSeen     LastSeenMessages `json:"last_seen"`
		LastReceived *LastSeenEntry   `json:"last_received,omitempty"`
	}
)

func (e LastSeenEntry) Equal(other LastSeenEntry) bool {
	return e.ProfileID == other.ProfileID && e.Signature.Equal(other.Signature)
}

// NewLastSeenMessages copies entries, keeping at most LastSeenMaxEntries of the most recent.
func NewLastSeenMessages(entries ...LastSeenEntry) LastSeenMessages {
	if len(entries) > LastSeenMaxEntries {
		entries = entries[:LastSeenMaxEntries]
	}
	out := make([]LastSeenEntry, len(entries))
	copy(out, entries)
	return LastSeenMessages{Entries: out}
}

func (l LastSeenMessages) Len() int {
	return len(l.Entries)
}

// IndexOf returns the position of e counting from the most recent entry, or -1.
func (l LastSeenMessages) IndexOf(e LastSeenEntry) int {
	for i, entry := range l.Entries {
		if entry.Equal(e) {
			return i
		}
	}
	return -1
}

func (l LastSeenMessages) HasDuplicateProfiles() bool {
	seen := make(map[uuid.UUID]struct{}, len(l.Entries))
	for _, e := range l.Entries {
		if _, ok := seen[e.ProfileID]; ok {
			return true
		}
		seen[e.ProfileID] = struct{}{}
	}
	return false
}
