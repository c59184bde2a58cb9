package room

// TypingState tracks which participants of a room are currently typing.
// Entries are removed on an explicit stop, on chat send, and on leave.
//
// TypingState is not safe for concurrent use; the owning Store serializes
// access.
type TypingState struct {
	typing map[string]string // participantID -> display name
}

func newTypingState() *TypingState {
	return &TypingState{typing: make(map[string]string)}
}

// Set records or clears a participant's typing status and reports whether
// the aggregate view changed.
func (t *TypingState) Set(participantID, displayName string, isTyping bool) bool {
	if isTyping {
		if name, ok := t.typing[participantID]; ok && name == displayName {
			return false
		}
		t.typing[participantID] = displayName
		return true
	}
	if _, ok := t.typing[participantID]; !ok {
		return false
	}
	delete(t.typing, participantID)
	return true
}

// View returns the current "who is typing" aggregate.
func (t *TypingState) View() map[string]string {
	out := make(map[string]string, len(t.typing))
	for id, name := range t.typing {
		out[id] = name
	}
	return out
}
