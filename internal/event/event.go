package event

import (
	"encoding/json"
	"errors"

	"github.com/podiumhq/podium/backend/internal/poll"
)

// Kind is the `t` tag of a wire frame.
type Kind string

// Client → server kinds (all of them are also relayed back out).
const (
	KindHello       Kind = "hello"
	KindAnnounce    Kind = "announce"
	KindPoll        Kind = "poll"
	KindAnswer      Kind = "answer"
	KindTick        Kind = "tick"
	KindScores      Kind = "scores"
	KindReset       Kind = "reset"
	KindReact       Kind = "react"
	KindReactUpdate Kind = "react_update"
	KindQANew       Kind = "qa_new"
	KindQAVote      Kind = "qa_vote"
	KindQAUpdate    Kind = "qa_update"
)

// Server → client only kinds.
const (
	KindRoster         Kind = "roster"
	KindAvatarConflict Kind = "avatar_conflict"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownKind = errors.New("unknown event kind")
)

// One participant's row in a room score table.
type ScoreEntry struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Avatar string `json:"avatar"`
}

// One audience question in the Q&A queue.
type Question struct {
	Text   string `json:"text"`
	From   string `json:"from"`
	Avatar string `json:"avatar"`
	Votes  int    `json:"votes"`
}

// Envelope is a wire frame. The protocol is flat: every frame carries `t` and
// `room`, and each kind reads the subset of remaining fields it cares about.
type Envelope struct {
	T    Kind   `json:"t"`
	Room string `json:"room,omitempty"`

	// hello
	Role string `json:"role,omitempty"`

	// announce / answer / react / qa_new (participant identifier)
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`

	// poll
	Poll *poll.Poll `json:"poll,omitempty"`

	// answer
	PollID string          `json:"pollId,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`

	// tick
	Left *int `json:"left,omitempty"`

	// scores
	Scores map[string]*ScoreEntry `json:"scores,omitempty"`
	Rev    uint64                 `json:"rev,omitempty"`

	// react / react_update
	Emoji     string         `json:"emoji,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`

	// qa_new / qa_vote / qa_update
	QID  string               `json:"qid,omitempty"`
	Text string               `json:"text,omitempty"`
	QA   map[string]*Question `json:"qa,omitempty"`

	// roster
	Avatars []string `json:"avatars,omitempty"`
}

// Decode parses a frame and checks the fields its kind requires. Any error
// means the frame should be dropped; the connection stays up either way.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformed
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) validate() error {
	switch e.T {
	case KindHello, KindAnnounce, KindTick, KindScores, KindReset,
		KindReactUpdate, KindQAUpdate, KindRoster, KindAvatarConflict:
		return nil
	case KindPoll:
		if e.Poll == nil {
			return ErrMalformed
		}
		return nil
	case KindAnswer:
		if len(e.Answer) == 0 {
			return ErrMalformed
		}
		return nil
	case KindReact:
		if e.Emoji == "" {
			return ErrMalformed
		}
		return nil
	case KindQANew:
		if e.Text == "" {
			return ErrMalformed
		}
		return nil
	case KindQAVote:
		if e.QID == "" {
			return ErrMalformed
		}
		return nil
	default:
		return ErrUnknownKind
	}
}

// Encode marshals a frame for the wire. Envelopes are built from our own
// types, so a marshal failure is a programming error surfaced to the caller.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Server-built frames below carry their collection even when it is empty:
// receivers replace their local view wholesale, so `scores:{}` must not be
// dropped from the wire the way omitempty would.

type ScoresMessage struct {
	T      Kind                   `json:"t"`
	Room   string                 `json:"room"`
	Scores map[string]*ScoreEntry `json:"scores"`
	Rev    uint64                 `json:"rev"`
}

type RosterMessage struct {
	T       Kind     `json:"t"`
	Room    string   `json:"room"`
	Avatars []string `json:"avatars"`
}

type ReactionsMessage struct {
	T         Kind           `json:"t"`
	Room      string         `json:"room"`
	Reactions map[string]int `json:"reactions"`
}
