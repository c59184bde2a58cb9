// Package room owns the server's shared session state: the registry of rooms
// and their members, plus each room's chat log and typing view.
//
// All state is guarded by a single Store mutex so join/leave/chat/typing
// events observe rooms in a consistent order. A room exists exactly while its
// member set is non-empty; the last leave deletes the room together with its
// chat log and typing state.
package room

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDisplayName is used when a participant joins without a name.
const DefaultDisplayName = "Anonymous"

// Member is one participant of a room, in arrival order.
type Member struct {
	ID          string
	DisplayName string
	JoinedAt    time.Time
}

type roomState struct {
	members []Member
	chat    *ChatLog
	typing  *TypingState
}

// Store is the authoritative room registry.
type Store struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	rooms   map[string]*roomState
	current map[string]string // participantID -> roomID
}

func NewStore(logger *slog.Logger) *Store {
	return newStore(logger, time.Now)
}

func newStore(logger *slog.Logger, now func() time.Time) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		log:     logger,
		now:     now,
		rooms:   make(map[string]*roomState),
		current: make(map[string]string),
	}
}

// Join admits a participant into a room, creating the room on first join.
//
// Join is idempotent: re-joining the current room refreshes the display name
// and returns the present roster without adding a duplicate entry. Joining a
// different room implicitly leaves the old one first, so a participant is a
// member of at most one room.
//
// The returned roster is the room's members in arrival order (joiner last),
// and history is the room's chat log for one-shot replay to the joiner.
func (s *Store) Join(participantID, roomID, displayName string) (roster []Member, history []Message) {
	if displayName == "" {
		displayName = DefaultDisplayName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.current[participantID]; ok {
		if prev == roomID {
			st := s.rooms[roomID]
			for i := range st.members {
				if st.members[i].ID == participantID {
					st.members[i].DisplayName = displayName
					break
				}
			}
			return snapshotMembers(st.members), st.chat.Replay()
		}
		s.leaveLocked(participantID, prev)
	}

	st, ok := s.rooms[roomID]
	if !ok {
		st = &roomState{
			chat:   &ChatLog{},
			typing: newTypingState(),
		}
		s.rooms[roomID] = st
		s.log.Debug("room created", "room", roomID)
	}

	st.members = append(st.members, Member{
		ID:          participantID,
		DisplayName: displayName,
		JoinedAt:    s.now(),
	})
	s.current[participantID] = roomID

	s.log.Info("participant joined",
		"room", roomID,
		"participant", participantID,
		"display_name", displayName,
		"members", len(st.members),
	)
	return snapshotMembers(st.members), st.chat.Replay()
}

// Leave removes a participant from its current room, deleting the room (and
// its chat log and typing state with it) when the member set becomes empty.
// It returns the room left and the remaining members, or ok=false if the
// participant was not in any room.
func (s *Store) Leave(participantID string) (roomID string, remaining []Member, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok = s.current[participantID]
	if !ok {
		return "", nil, false
	}
	remaining = s.leaveLocked(participantID, roomID)
	return roomID, remaining, true
}

func (s *Store) leaveLocked(participantID, roomID string) []Member {
	st := s.rooms[roomID]
	delete(s.current, participantID)

	var joinedAt time.Time
	for i, m := range st.members {
		if m.ID == participantID {
			joinedAt = m.JoinedAt
			st.members = append(st.members[:i], st.members[i+1:]...)
			break
		}
	}
	st.typing.Set(participantID, "", false)

	if len(st.members) == 0 {
		delete(s.rooms, roomID)
		s.log.Debug("room deleted", "room", roomID)
	}

	s.log.Info("participant left",
		"room", roomID,
		"participant", participantID,
		"online", s.now().Sub(joinedAt).Round(time.Second).String(),
	)
	return snapshotMembers(st.members)
}

// RoomOf resolves a participant's current room.
func (s *Store) RoomOf(participantID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.current[participantID]
	return roomID, ok
}

// Members returns the roster of a room in arrival order.
func (s *Store) Members(roomID string) []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return snapshotMembers(st.members)
}

// AppendChat resolves the sender's room, appends the message to its chat log
// and clears the sender's typing entry, all under one lock so the log order
// matches the broadcast order. The returned members are the room's member set
// at append time; fanning the message out to exactly that set (and replaying
// the log to later joiners) is what keeps delivery exactly-once when joins
// race with chat. typingCleared reports whether the sender had a live typing
// entry. ok is false when the sender is in no room.
func (s *Store) AppendChat(senderID, senderName, text string) (msg Message, members []Member, typingCleared, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.current[senderID]
	if !ok {
		return Message{}, nil, false, false
	}
	st := s.rooms[roomID]
	msg = st.chat.Append(senderID, senderName, text, s.now())
	typingCleared = st.typing.Set(senderID, "", false)
	return msg, snapshotMembers(st.members), typingCleared, true
}

// SetTyping updates the sender's typing entry in its current room and returns
// the member set observed under the same lock. changed is false when the
// update was a no-op (e.g. a repeated stop signal).
func (s *Store) SetTyping(senderID, displayName string, isTyping bool) (members []Member, changed bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.current[senderID]
	if !ok {
		return nil, false, false
	}
	st := s.rooms[roomID]
	changed = st.typing.Set(senderID, displayName, isTyping)
	return snapshotMembers(st.members), changed, true
}

// TypingView returns the current aggregate typing view of a room.
func (s *Store) TypingView(roomID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return st.typing.View()
}

// RoomCount reports the number of live rooms.
func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func snapshotMembers(members []Member) []Member {
	if len(members) == 0 {
		return nil
	}
	out := make([]Member, len(members))
	copy(out, members)
	return out
}
