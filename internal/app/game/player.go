package game

import (
	"github.com/bkohler93/match3-backend/internal/shared/message"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
)

// Peer is the outbound side of a player's connection. Send must not block; false
// means the message could not be queued and the connection is going away.
type Peer interface {
	Send(msg message.Message) bool
}

// Member is one of the two players handed to a new session, in pairing order.
type Member struct {
	ID   uuidstring.ID
	Peer Peer
}

type seat struct {
	id      uuidstring.ID
	peer    Peer
	score   uint32
	present bool
	voted   bool
}

func (s *seat) send(msg message.Message) {
	if !s.present {
		return
	}
	s.peer.Send(msg)
}
