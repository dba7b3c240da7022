package lastseen

import (
	"secure_chat/internal/model"
)

// Window collects the messages a participant has received so it can acknowledge them.
// It keeps at most one entry per sender, most recent first.
type Window struct {
	entries      []model.LastSeenEntry
	lastReceived *model.LastSeenEntry
}

func NewWindow() *Window {
	return &Window{}
}

func (w *Window) Push(e model.LastSeenEntry) {
	entries := make([]model.LastSeenEntry, 0, model.LastSeenMaxEntries)
	entries = append(entries, e)
	for _, old := range w.entries {
		if old.ProfileID == e.ProfileID {
			continue
		}
		if len(entries) == model.LastSeenMaxEntries {
			break
		}
		entries = append(entries, old)
	}
	w.entries = entries
	w.lastReceived = &e
}

func (w *Window) Snapshot() model.LastSeenMessages {
	return model.NewLastSeenMessages(w.entries...)
}

// Update acknowledges the current window and the most recently received message.
func (w *Window) Update() model.LastSeenUpdate {
	u := model.LastSeenUpdate{LastSeen: w.Snapshot()}
	if w.lastReceived != nil {
		lr := *w.lastReceived
		u.LastReceived = &lr
	}
	return u
}
