package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

func testStore() *Store {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	return newStore(nil, func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
}

func rosterIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestStore_JoinRosterOrder(t *testing.T) {
	s := testStore()

	roster, history := s.Join("a", "ABC123", "Ada")
	if len(history) != 0 {
		t.Fatalf("first joiner got history: %s", spew.Sdump(history))
	}
	if got := rosterIDs(roster); len(got) != 1 || got[0] != "a" {
		t.Fatalf("roster after first join: %v", got)
	}

	roster, _ = s.Join("b", "ABC123", "Bob")
	if got := rosterIDs(roster); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("roster not in arrival order: %v", got)
	}

	roster, _ = s.Join("c", "ABC123", "")
	if roster[2].DisplayName != DefaultDisplayName {
		t.Fatalf("empty display name not defaulted: %s", spew.Sdump(roster[2]))
	}
}

func TestStore_JoinIsIdempotent(t *testing.T) {
	s := testStore()

	s.Join("a", "ABC123", "Ada")
	roster, _ := s.Join("a", "ABC123", "Ada")
	if len(roster) != 1 {
		t.Fatalf("duplicate join produced duplicate roster entry: %s", spew.Sdump(roster))
	}
}

func TestStore_RejoinRefreshesDisplayName(t *testing.T) {
	s := testStore()

	s.Join("a", "ABC123", "Ada")
	roster, _ := s.Join("a", "ABC123", "Ada L.")
	if len(roster) != 1 || roster[0].DisplayName != "Ada L." {
		t.Fatalf("roster after rename: %s", spew.Sdump(roster))
	}
}

func TestStore_JoinSwitchesRooms(t *testing.T) {
	s := testStore()

	s.Join("a", "room-1", "Ada")
	s.Join("a", "room-2", "Ada")

	if members := s.Members("room-1"); members != nil {
		t.Fatalf("room-1 should be deleted after its only member moved: %v", members)
	}
	if got, _ := s.RoomOf("a"); got != "room-2" {
		t.Fatalf("RoomOf = %q, want room-2", got)
	}
}

func TestStore_LeaveDeletesEmptyRoomAtomically(t *testing.T) {
	s := testStore()

	s.Join("a", "ABC123", "Ada")
	s.Join("b", "ABC123", "Bob")
	s.AppendChat("a", "Ada", "hi")
	s.SetTyping("b", "Bob", true)

	roomID, remaining, ok := s.Leave("a")
	if !ok || roomID != "ABC123" {
		t.Fatalf("leave: room=%q ok=%v", roomID, ok)
	}
	if got := rosterIDs(remaining); len(got) != 1 || got[0] != "b" {
		t.Fatalf("remaining members: %v", got)
	}
	if s.RoomCount() != 1 {
		t.Fatalf("room deleted while still occupied")
	}

	_, _, ok = s.Leave("b")
	if !ok {
		t.Fatal("second leave failed")
	}
	if s.RoomCount() != 0 {
		t.Fatal("room survived its last member")
	}
	if view := s.TypingView("ABC123"); view != nil {
		t.Fatalf("typing state survived room deletion: %v", view)
	}

	// A fresh room with the same identifier starts empty.
	_, history := s.Join("c", "ABC123", "Cy")
	if len(history) != 0 {
		t.Fatalf("chat log survived room deletion: %s", spew.Sdump(history))
	}
}

func TestStore_LeaveUnknownParticipant(t *testing.T) {
	s := testStore()
	if _, _, ok := s.Leave("ghost"); ok {
		t.Fatal("leave of unknown participant reported ok")
	}
}

func TestStore_ChatReplayToLateJoiner(t *testing.T) {
	s := testStore()

	s.Join("a", "ABC123", "Ada")
	for _, text := range []string{"one", "two", "three"} {
		if _, _, _, ok := s.AppendChat("a", "Ada", text); !ok {
			t.Fatalf("append %q failed", text)
		}
	}

	_, history := s.Join("b", "ABC123", "Bob")
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, want := range []string{"one", "two", "three"} {
		if history[i].Text != want {
			t.Fatalf("history[%d] = %q, want %q", i, history[i].Text, want)
		}
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp <= history[i-1].Timestamp {
			t.Fatalf("timestamps not increasing: %s", spew.Sdump(history))
		}
	}
}

func TestStore_ChatFromRoomlessSenderDropped(t *testing.T) {
	s := testStore()
	if _, _, _, ok := s.AppendChat("ghost", "Ghost", "boo"); ok {
		t.Fatal("chat from participant in no room was accepted")
	}
}

func TestStore_TypingLifecycle(t *testing.T) {
	s := testStore()
	s.Join("a", "ABC123", "Ada")
	s.Join("b", "ABC123", "Bob")

	if _, changed, ok := s.SetTyping("a", "Ada", true); !ok || !changed {
		t.Fatal("typing start not recorded")
	}
	if view := s.TypingView("ABC123"); view["a"] != "Ada" {
		t.Fatalf("typing view = %v", view)
	}

	// Repeated start is a no-op.
	if _, changed, _ := s.SetTyping("a", "Ada", true); changed {
		t.Fatal("repeated typing start reported as change")
	}

	// Sending a chat message implicitly clears typing.
	s.AppendChat("a", "Ada", "done")
	if view := s.TypingView("ABC123"); len(view) != 0 {
		t.Fatalf("typing not cleared on chat send: %v", view)
	}

	// Explicit stop after stop is a no-op.
	if _, changed, _ := s.SetTyping("a", "Ada", false); changed {
		t.Fatal("redundant typing stop reported as change")
	}

	// Leaving clears the typing entry.
	s.SetTyping("b", "Bob", true)
	s.Leave("b")
	if view := s.TypingView("ABC123"); len(view) != 0 {
		t.Fatalf("typing survived leave: %v", view)
	}
}

func TestStore_AppendChatReturnsMembersAtAppendTime(t *testing.T) {
	s := testStore()

	s.Join("a", "ABC123", "Ada")
	s.Join("b", "ABC123", "Bob")

	_, members, _, ok := s.AppendChat("a", "Ada", "hi")
	if !ok {
		t.Fatal("append failed")
	}
	if got := rosterIDs(members); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("members at append time: %v", got)
	}
}

func TestChatLog_MonotonicTimestamps(t *testing.T) {
	l := &ChatLog{}
	frozen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := l.Append("a", "Ada", "x", frozen)
	second := l.Append("a", "Ada", "y", frozen)
	stepped := l.Append("a", "Ada", "z", frozen.Add(-time.Hour))

	if !(first.Timestamp < second.Timestamp && second.Timestamp < stepped.Timestamp) {
		t.Fatalf("timestamps not strictly increasing: %d %d %d",
			first.Timestamp, second.Timestamp, stepped.Timestamp)
	}
}

func TestChatLog_EvictsOldestWhenFull(t *testing.T) {
	l := &ChatLog{}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	total := MaxChatLogEntries + 10
	for i := 0; i < total; i++ {
		l.Append("a", "Ada", fmt.Sprintf("m%d", i), at)
	}

	replay := l.Replay()
	if len(replay) != MaxChatLogEntries {
		t.Fatalf("log length = %d, want %d", len(replay), MaxChatLogEntries)
	}
	if want := fmt.Sprintf("m%d", total-MaxChatLogEntries); replay[0].Text != want {
		t.Fatalf("oldest surviving entry = %q, want %q", replay[0].Text, want)
	}
	if want := fmt.Sprintf("m%d", total-1); replay[len(replay)-1].Text != want {
		t.Fatalf("newest entry = %q, want %q", replay[len(replay)-1].Text, want)
	}
	for i := 1; i < len(replay); i++ {
		if replay[i].Timestamp <= replay[i-1].Timestamp {
			t.Fatal("timestamps not increasing across eviction")
		}
	}
}
