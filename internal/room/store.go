package room

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/podiumhq/podium/backend/internal/event"
	"github.com/podiumhq/podium/backend/internal/poll"
)

// Store owns every room's ledgers. Rooms are created lazily on first
// reference and dropped by the reaper once they have sat empty past the
// grace period.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*State
}

func NewStore() *Store {
	return &Store{rooms: make(map[string]*State)}
}

// Get returns the room's state, creating it on first reference.
func (s *Store) Get(key string) *State {
	s.mu.RLock()
	st, ok := s.rooms[key]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.rooms[key]; ok {
		return st
	}
	st = newState(key)
	s.rooms[key] = st
	return st
}

// Peek returns the room's state without creating it.
func (s *Store) Peek(key string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[key]
}

func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.rooms))
	for key := range s.rooms {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// EvictIdle deletes rooms that have been empty for longer than grace and
// returns their keys.
func (s *Store) EvictIdle(grace time.Duration) []string {
	cutoff := time.Now().Add(-grace)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for key, st := range s.rooms {
		if st.emptyBefore(cutoff) {
			delete(s.rooms, key)
			evicted = append(evicted, key)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// State is one room's ledger bundle: score table, avatar reservations,
// reaction tallies, and a mirror of the host's active poll. Peer sets live
// in the hub; the state only tracks occupancy for eviction.
type State struct {
	key string

	mu        sync.Mutex
	scores    map[string]*event.ScoreEntry
	avatars   map[string]string // avatar token -> participant identifier
	reactions map[string]int
	rev       uint64
	session   *poll.Session

	// zero while occupied
	emptySince time.Time
}

func newState(key string) *State {
	return &State{
		key:        key,
		scores:     make(map[string]*event.ScoreEntry),
		avatars:    make(map[string]string),
		reactions:  make(map[string]int),
		emptySince: time.Now(),
	}
}

func (st *State) Key() string { return st.key }

func (st *State) MarkOccupied() {
	st.mu.Lock()
	st.emptySince = time.Time{}
	st.mu.Unlock()
}

func (st *State) MarkEmpty() {
	st.mu.Lock()
	st.emptySince = time.Now()
	st.mu.Unlock()
}

func (st *State) emptyBefore(cutoff time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.emptySince.IsZero() && st.emptySince.Before(cutoff)
}

// Announce reserves an avatar for a participant and upserts their score
// entry. Re-announcing the same avatar with the same participant identifier
// is idempotent; an avatar held by a different participant is a conflict.
func (st *State) Announce(participantID, name, avatar string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if holder, held := st.avatars[avatar]; held && holder != participantID {
		return false
	}
	st.avatars[avatar] = participantID

	if entry, ok := st.scores[participantID]; ok {
		entry.Avatar = avatar
	} else {
		if name == "" {
			name = "Guest"
		}
		st.scores[participantID] = &event.ScoreEntry{Name: name, Avatar: avatar}
	}
	return true
}

// ReleaseAvatar frees a token if it is still held by the given participant.
// Reports whether anything changed.
func (st *State) ReleaseAvatar(avatar, participantID string) bool {
	if avatar == "" {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.avatars[avatar] != participantID {
		return false
	}
	delete(st.avatars, avatar)
	return true
}

// Roster lists the currently reserved avatar tokens.
func (st *State) Roster() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	roster := make([]string, 0, len(st.avatars))
	for avatar := range st.avatars {
		roster = append(roster, avatar)
	}
	sort.Strings(roster)
	return roster
}

func (st *State) DisplayName(participantID string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if entry, ok := st.scores[participantID]; ok {
		return entry.Name
	}
	return ""
}

// Scores returns a copy of the score table and its revision.
func (st *State) Scores() (map[string]*event.ScoreEntry, uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.copyScoresLocked(), st.rev
}

// SetScores replaces the whole table (last write wins) and bumps the
// revision stamped onto the next broadcast.
func (st *State) SetScores(scores map[string]*event.ScoreEntry) (map[string]*event.ScoreEntry, uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.scores = make(map[string]*event.ScoreEntry, len(scores))
	for id, entry := range scores {
		if entry == nil {
			continue
		}
		cp := *entry
		st.scores[id] = &cp
	}
	st.rev++
	return st.copyScoresLocked(), st.rev
}

func (st *State) ResetScores() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scores = make(map[string]*event.ScoreEntry)
	st.rev++
	return st.rev
}

func (st *State) copyScoresLocked() map[string]*event.ScoreEntry {
	out := make(map[string]*event.ScoreEntry, len(st.scores))
	for id, entry := range st.scores {
		cp := *entry
		out[id] = &cp
	}
	return out
}

// React bumps the tally for an emoji and returns the aggregated view.
func (st *State) React(emoji string) map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.reactions[emoji]++
	return st.copyReactionsLocked()
}

// SetReactions overwrites the tally from an authoritative payload.
func (st *State) SetReactions(reactions map[string]int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.reactions = make(map[string]int, len(reactions))
	for emoji, count := range reactions {
		st.reactions[emoji] = count
	}
}

func (st *State) Reactions() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.copyReactionsLocked()
}

func (st *State) copyReactionsLocked() map[string]int {
	out := make(map[string]int, len(st.reactions))
	for emoji, count := range st.reactions {
		out[emoji] = count
	}
	return out
}

// StartPoll mirrors a host's poll broadcast: any previous poll is
// superseded and the answer set starts empty.
func (st *State) StartPoll(p poll.Poll) {
	st.mu.Lock()
	defer st.mu.Unlock()
	session := poll.NewSession(p)
	session.Start()
	st.session = session
}

// RecordAnswer mirrors an answer into the active poll. Answers for a stale
// poll id are ignored.
func (st *State) RecordAnswer(pollID, participantID string, raw json.RawMessage) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session == nil || st.session.Poll.ID != pollID {
		return false
	}
	return st.session.Record(participantID, poll.ParseAnswer(raw))
}

// TickPoll mirrors the host's countdown position.
func (st *State) TickPoll(left int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session != nil {
		st.session.Tick(left)
	}
}

// PollStatus describes the mirrored poll for stats and late joiners.
type PollStatus struct {
	Poll    poll.Poll
	State   poll.State
	Left    int
	Answers int
}

func (st *State) PollStatus() (PollStatus, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session == nil {
		return PollStatus{}, false
	}
	return PollStatus{
		Poll:    st.session.Poll,
		State:   st.session.State(),
		Left:    st.session.Left,
		Answers: st.session.AnswerCount(),
	}, true
}
