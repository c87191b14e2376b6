package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/podiumhq/podium/backend/internal/event"
	"github.com/podiumhq/podium/backend/internal/room"
)

// Avatar assigned when an announce does not carry one.
const defaultAvatar = "🙂"

// Peer is one live connection bound to a room, as the dispatcher sees it.
type Peer interface {
	ID() string
	Room() string
	Identity() (participantID, avatar string)
	SetIdentity(participantID, avatar string)
	Send(data []byte) bool
}

// Relay fans a frame out to every peer of a room.
type Relay interface {
	Broadcast(roomKey string, data []byte)
}

// Dispatcher classifies inbound events by kind and applies each one to the
// room ledgers before relaying. It runs on the hub goroutine.
type Dispatcher struct {
	store  *room.Store
	relay  Relay
	logger *zap.Logger
}

func NewDispatcher(store *room.Store, relay Relay, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, relay: relay, logger: logger}
}

// Bootstrap sends a freshly bound peer the room snapshot: roster, scores,
// and the active poll if one is underway.
func (d *Dispatcher) Bootstrap(p Peer, st *room.State) {
	roomKey := st.Key()
	d.reply(p, event.RosterMessage{T: event.KindRoster, Room: roomKey, Avatars: st.Roster()})

	scores, rev := st.Scores()
	d.reply(p, event.ScoresMessage{T: event.KindScores, Room: roomKey, Scores: scores, Rev: rev})

	if status, ok := st.PollStatus(); ok {
		pollCopy := status.Poll
		d.reply(p, &event.Envelope{T: event.KindPoll, Room: roomKey, Poll: &pollCopy})
		left := status.Left
		d.reply(p, &event.Envelope{T: event.KindTick, Room: roomKey, Left: &left})
	}
}

// Dispatch routes one validated event. Each kind mutates at most the
// sender's own room; nothing here ever crosses rooms.
func (d *Dispatcher) Dispatch(p Peer, env *event.Envelope) {
	roomKey := p.Room()
	env.Room = roomKey
	st := d.store.Get(roomKey)

	switch env.T {
	case event.KindHello:
		// Handshake only.

	case event.KindAnnounce:
		d.handleAnnounce(p, st, env)

	case event.KindPoll:
		st.StartPoll(*env.Poll)
		d.broadcast(roomKey, env)

	case event.KindAnswer:
		participantID := env.ID
		if participantID == "" {
			participantID, _ = p.Identity()
		}
		st.RecordAnswer(env.PollID, participantID, env.Answer)
		d.broadcast(roomKey, env)

	case event.KindTick:
		if env.Left != nil {
			st.TickPoll(*env.Left)
		}
		d.broadcast(roomKey, env)

	case event.KindScores:
		d.handleScores(st, env)

	case event.KindReset:
		rev := st.ResetScores()
		d.broadcast(roomKey, env)
		d.broadcast(roomKey, event.ScoresMessage{
			T: event.KindScores, Room: roomKey,
			Scores: map[string]*event.ScoreEntry{}, Rev: rev,
		})

	case event.KindReact:
		tally := st.React(env.Emoji)
		d.broadcast(roomKey, env)
		d.broadcast(roomKey, event.ReactionsMessage{
			T: event.KindReactUpdate, Room: roomKey, Reactions: tally,
		})

	case event.KindReactUpdate:
		st.SetReactions(env.Reactions)
		d.broadcast(roomKey, event.ReactionsMessage{
			T: event.KindReactUpdate, Room: roomKey, Reactions: st.Reactions(),
		})

	case event.KindQANew, event.KindQAVote, event.KindQAUpdate:
		// The Q&A map is host-owned; the relay only propagates it.
		d.broadcast(roomKey, env)

	case event.KindRoster, event.KindAvatarConflict:
		// Server-only kinds; a client sending them is ignored.
	}
}

func (d *Dispatcher) handleAnnounce(p Peer, st *room.State, env *event.Envelope) {
	roomKey := st.Key()

	participantID := env.ID
	if participantID == "" {
		participantID = p.ID()
	}
	avatar := env.Avatar
	if avatar == "" {
		avatar = defaultAvatar
	}

	if !st.Announce(participantID, env.Name, avatar) {
		// Conflict goes to the sender only; the room hears nothing.
		d.reply(p, &event.Envelope{T: event.KindAvatarConflict, Room: roomKey})
		return
	}
	p.SetIdentity(participantID, avatar)

	d.broadcast(roomKey, &event.Envelope{
		T: event.KindAnnounce, Room: roomKey,
		ID: participantID, Name: st.DisplayName(participantID), Avatar: avatar,
	})
	scores, rev := st.Scores()
	d.broadcast(roomKey, event.ScoresMessage{T: event.KindScores, Room: roomKey, Scores: scores, Rev: rev})
	d.broadcast(roomKey, event.RosterMessage{T: event.KindRoster, Room: roomKey, Avatars: st.Roster()})
}

func (d *Dispatcher) handleScores(st *room.State, env *event.Envelope) {
	roomKey := st.Key()

	var (
		scores map[string]*event.ScoreEntry
		rev    uint64
	)
	if env.Scores == nil {
		// A push without a table re-broadcasts the current one.
		scores, rev = st.Scores()
	} else {
		scores, rev = st.SetScores(env.Scores)
	}
	d.broadcast(roomKey, event.ScoresMessage{T: event.KindScores, Room: roomKey, Scores: scores, Rev: rev})
}

func (d *Dispatcher) broadcastRoster(roomKey string, st *room.State) {
	d.broadcast(roomKey, event.RosterMessage{T: event.KindRoster, Room: roomKey, Avatars: st.Roster()})
}

func (d *Dispatcher) broadcast(roomKey string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("encode broadcast", zap.String("room", roomKey), zap.Error(err))
		return
	}
	d.relay.Broadcast(roomKey, data)
}

func (d *Dispatcher) reply(p Peer, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("encode reply", zap.String("client", p.ID()), zap.Error(err))
		return
	}
	p.Send(data)
}
