package poll

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Points awarded for a correct (or winning) answer.
const BaseScore = 100

type Type string

const (
	TypeMultipleChoice Type = "mc"
	TypeTrueFalse      Type = "tf"
	TypeScale          Type = "scale"
	TypeWordCloud      Type = "wordcloud"
	TypeOpen           Type = "open"
	// Numeric-estimate question; scored by distance to the correct key.
	TypeEstimate Type = "rank"
)

// Key is a correctness key as it arrives on the wire. Hosts usually send a
// string, but numeric-estimate polls may carry a bare number.
type Key string

func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = Key(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = Key(n.String())
	return nil
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// A host-broadcast question. Field names match the wire protocol.
type Poll struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Question    string   `json:"q"`
	Choices     []string `json:"choices,omitempty"`
	Timed       int      `json:"timed,omitempty"` // countdown seconds, 0 = open-ended
	Correct     *Key     `json:"correct,omitempty"`
	Multi       bool     `json:"multi,omitempty"`
	AllowChange bool     `json:"allowChange,omitempty"`
	MaxWords    int      `json:"maxWords,omitempty"`
	MaxChars    int      `json:"maxChars,omitempty"`
	Scored      bool     `json:"score,omitempty"`
}

// Answer is a participant's submitted value: a choice key, free text, a word
// list, or a number, depending on the poll type.
type Answer struct {
	raw json.RawMessage
}

func ParseAnswer(raw json.RawMessage) Answer {
	return Answer{raw: append(json.RawMessage(nil), raw...)}
}

func (a Answer) Raw() json.RawMessage { return a.raw }

func (a Answer) IsZero() bool { return len(a.raw) == 0 }

// Text renders the answer the way it is compared against a correctness key:
// strings as-is, numbers in decimal, word lists comma-joined.
func (a Answer) Text() string {
	var s string
	if err := json.Unmarshal(a.raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(a.raw, &n); err == nil {
		return n.String()
	}
	var list []string
	if err := json.Unmarshal(a.raw, &list); err == nil {
		return strings.Join(list, ",")
	}
	return ""
}

func (a Answer) Number() (float64, bool) {
	var n float64
	if err := json.Unmarshal(a.raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(a.raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

type State int

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateOpenEnded
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateOpenEnded:
		return "open-ended"
	case StateFinished:
		return "finished"
	default:
		return "idle"
	}
}

// One poll's lifetime: collected answers plus the countdown position. A
// Session is not safe for concurrent use; callers serialize access.
type Session struct {
	Poll    Poll
	Left    int
	state   State
	answers map[string]Answer
}

func NewSession(p Poll) *Session {
	return &Session{
		Poll:    p,
		Left:    p.Timed,
		state:   StateArmed,
		answers: make(map[string]Answer),
	}
}

func (s *Session) State() State { return s.state }

// Moves an armed session into running (or open-ended when there is no
// countdown). Starting twice is a no-op.
func (s *Session) Start() {
	if s.state != StateArmed {
		return
	}
	if s.Poll.Timed > 0 {
		s.state = StateRunning
	} else {
		s.state = StateOpenEnded
	}
}

// Records a countdown position reported by the host. Reaching zero finishes
// a running session.
func (s *Session) Tick(left int) {
	if left < 0 {
		left = 0
	}
	s.Left = left
	if s.state == StateRunning && left == 0 {
		s.state = StateFinished
	}
}

func (s *Session) Finish() {
	if s.state != StateFinished {
		s.state = StateFinished
		s.Left = 0
	}
}

// Records an answer for a participant. The first answer is final unless the
// poll allows changes; a finished session accepts nothing.
func (s *Session) Record(participantID string, ans Answer) bool {
	if participantID == "" || ans.IsZero() || s.state == StateFinished {
		return false
	}
	if _, exists := s.answers[participantID]; exists && !s.Poll.AllowChange {
		return false
	}
	s.answers[participantID] = ans
	return true
}

func (s *Session) Answer(participantID string) (Answer, bool) {
	ans, ok := s.answers[participantID]
	return ans, ok
}

func (s *Session) AnswerCount() int { return len(s.answers) }

// Answers returns a copy of the collected answer set.
func (s *Session) Answers() map[string]Answer {
	out := make(map[string]Answer, len(s.answers))
	for id, ans := range s.answers {
		out[id] = ans
	}
	return out
}

// Deltas computes the points each participant earned from this poll. Nil for
// unscored polls.
//
// Default rule: BaseScore to every answer that case-insensitively equals the
// correct key, or to every answer when no key is configured. Estimate rule:
// BaseScore to every numeric answer tied for the smallest distance to the
// key, so exact ties all win.
func (s *Session) Deltas() map[string]int {
	if !s.Poll.Scored {
		return nil
	}

	deltas := make(map[string]int)

	if s.Poll.Type == TypeEstimate && s.Poll.Correct != nil {
		target, err := strconv.ParseFloat(strings.TrimSpace(string(*s.Poll.Correct)), 64)
		if err != nil {
			return deltas
		}
		minDist := math.Inf(1)
		for _, ans := range s.answers {
			if v, ok := ans.Number(); ok {
				if d := math.Abs(v - target); d < minDist {
					minDist = d
				}
			}
		}
		for id, ans := range s.answers {
			if v, ok := ans.Number(); ok && math.Abs(v-target) == minDist {
				deltas[id] = BaseScore
			}
		}
		return deltas
	}

	for id, ans := range s.answers {
		if s.Poll.Correct == nil || strings.EqualFold(ans.Text(), string(*s.Poll.Correct)) {
			deltas[id] = BaseScore
		}
	}
	return deltas
}
