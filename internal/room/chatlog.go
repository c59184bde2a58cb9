package room

import "time"

// Message is one immutable chat entry.
type Message struct {
	Sender      string
	SenderName  string
	Text        string
	Timestamp   int64 // unix milliseconds, assigned at append time
}

// MaxChatLogEntries bounds each room's replayable history. Once full, the
// oldest entry is dropped per append, so a long-lived room cannot pin server
// memory.
const MaxChatLogEntries = 500

// ChatLog is a per-room bounded buffer of chat entries, replayed to late
// joiners. It lives and dies with its room.
//
// ChatLog is not safe for concurrent use; the owning Store serializes access.
type ChatLog struct {
	msgs   []Message
	lastTS int64
}

// Append stores a new entry with a server-assigned timestamp, evicting the
// oldest entry when the log is full. Timestamps are strictly increasing
// within a log so replay order is unambiguous even when the wall clock stalls
// or steps backwards.
func (l *ChatLog) Append(senderID, senderName, text string, now time.Time) Message {
	ts := now.UnixMilli()
	if ts <= l.lastTS {
		ts = l.lastTS + 1
	}
	l.lastTS = ts

	msg := Message{
		Sender:     senderID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  ts,
	}
	if len(l.msgs) >= MaxChatLogEntries {
		// Copy rather than reslice so the evicted entries are collectable.
		keep := make([]Message, MaxChatLogEntries-1, MaxChatLogEntries)
		copy(keep, l.msgs[len(l.msgs)-(MaxChatLogEntries-1):])
		l.msgs = keep
	}
	l.msgs = append(l.msgs, msg)
	return msg
}

// Replay returns the entries in append order. The returned slice is a copy;
// the log itself is never mutated by readers.
func (l *ChatLog) Replay() []Message {
	if len(l.msgs) == 0 {
		return nil
	}
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *ChatLog) Len() int { return len(l.msgs) }
