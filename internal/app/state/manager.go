package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/bkohler93/match3-backend/internal/app/game"
	"github.com/bkohler93/match3-backend/internal/app/matchmake"
	"github.com/bkohler93/match3-backend/internal/shared/events"
	"github.com/bkohler93/match3-backend/internal/shared/message"
	"github.com/bkohler93/match3-backend/internal/shared/metrics"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
	"go.uber.org/zap"
)

var (
	ErrInvalidState       = game.ErrInvalidState
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrInvariantViolation = errors.New("internal invariant violation")
	ErrShuttingDown       = errors.New("server is shutting down")
)

type Location int

const (
	Idle Location = iota
	Queued
	InSession
)

func (l Location) String() string {
	switch l {
	case Idle:
		return "Idle"
	case Queued:
		return "Queued"
	case InSession:
		return "InSession"
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

// Peer is a connection's outbound side as seen by sessions and the manager.
type Peer = game.Peer

type player struct {
	id      uuidstring.ID
	peer    game.Peer
	loc     Location
	session uuidstring.ID
}

func (p *player) send(msg message.Message) {
	p.peer.Send(msg)
}

type Options struct {
	Clock   clock.Clock
	Logger  *zap.Logger
	Events  *events.Emitter
	Metrics *metrics.Metrics
}

type Stats struct {
	Players  int `json:"players"`
	Queued   int `json:"queued"`
	Sessions int `json:"sessions"`
}

// Manager is the single serialization point for every structural change: players
// joining and leaving, queue pairing, and session creation and removal. Calls into a
// session are made with the manager lock held, so lock order is always manager then
// session.
type Manager struct {
	cfg   game.Config
	clock clock.Clock
	log   *zap.Logger
	evts  *events.Emitter
	stats *metrics.Metrics

	mu       sync.Mutex
	players  map[uuidstring.ID]*player
	queue    *matchmake.Queue
	sessions map[uuidstring.ID]*game.Session
	closed   bool
}

func NewManager(cfg game.Config, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		clock:    opts.Clock,
		log:      opts.Logger,
		evts:     opts.Events,
		stats:    opts.Metrics,
		players:  make(map[uuidstring.ID]*player),
		queue:    matchmake.NewQueue(),
		sessions: make(map[uuidstring.ID]*game.Session),
	}
}

// Register adds a connected player and sends its Connected handshake.
func (m *Manager) Register(peer Peer) (uuidstring.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrShuttingDown
	}
	p := &player{id: uuidstring.NewID(), peer: peer, loc: Idle}
	m.players[p.id] = p
	p.send(message.NewConnectedMessage(p.id))

	m.log.Info("player connected", zap.String("playerId", p.id.Short()))
	m.updateGaugesLocked()
	return p.id, nil
}

// Dispatch routes one decoded client message by the sender's location. Messages that
// do not fit the sender's state are answered with an Error and change nothing.
func (m *Manager) Dispatch(pid uuidstring.ID, msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[pid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, pid.Short())
	}
	m.stats.MessageReceived(msg.GetDiscriminator())

	err := m.dispatchLocked(p, msg)
	if err != nil {
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrInvariantViolation) {
			p.send(message.NewErrorMessage(err.Error()))
		}
		m.log.Debug("rejected message",
			zap.String("playerId", pid.Short()),
			zap.String("type", msg.GetDiscriminator()),
			zap.Error(err))
	}
	m.updateGaugesLocked()
	return err
}

func (m *Manager) dispatchLocked(p *player, msg message.Message) error {
	switch msg := msg.(type) {
	case *message.JoinQueueMessage:
		return m.joinQueueLocked(p)
	case *message.LeaveQueueMessage:
		return m.leaveQueueLocked(p)
	case *message.LeaveGameMessage:
		return m.leaveGameLocked(p)
	case *message.RequestRematchMessage:
		return m.requestRematchLocked(p)
	case *message.SwapGemsMessage:
		return m.withSessionLocked(p, func(s *game.Session) error { return s.Swap(p.id, msg) })
	case *message.ScoreUpdateMessage:
		return m.withSessionLocked(p, func(s *game.Session) error { return s.ReportScore(p.id, msg.Value(), msg.Garbage) })
	case *message.SendGarbageMessage:
		return m.withSessionLocked(p, func(s *game.Session) error { return s.SendGarbage(p.id, *msg.Amount) })
	case *message.CancelGarbageMessage:
		return m.withSessionLocked(p, func(s *game.Session) error { return s.CancelGarbage(p.id, *msg.Amount) })
	case *message.ActivateSpecialMessage:
		return m.withSessionLocked(p, func(s *game.Session) error { return s.RelaySpecial(p.id, *msg.Row, *msg.Col) })
	case *message.ActivateBoosterMessage:
		return m.withSessionLocked(p, func(s *game.Session) error { return s.RelayBooster(p.id, *msg.BoosterID) })
	default:
		return fmt.Errorf("%w: unexpected message %s", ErrInvalidState, message.PrintTypeDiscriminator(msg))
	}
}

// Disconnect removes a player for good. Queued players just vanish; a player in a
// session is reported to it before anything else can reach that session. Calling it
// again for the same player does nothing.
func (m *Manager) Disconnect(pid uuidstring.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[pid]
	if !ok {
		return
	}
	delete(m.players, pid)

	switch p.loc {
	case Queued:
		m.queue.Leave(pid)
	case InSession:
		if s, ok := m.sessions[p.session]; ok {
			var out game.Outcome
			err := m.guardLocked(s, func() (err error) {
				out, err = s.Leave(pid, message.Disconnect)
				return err
			})
			if err == nil {
				m.applyOutcomeLocked(s, out)
			}
		}
	}
	m.log.Info("player disconnected",
		zap.String("playerId", pid.Short()),
		zap.String("location", p.loc.String()))
	m.updateGaugesLocked()
}

func (m *Manager) joinQueueLocked(p *player) error {
	switch p.loc {
	case Queued:
		return fmt.Errorf("%w: %v", ErrInvalidState, matchmake.ErrAlreadyQueued)
	case InSession:
		return fmt.Errorf("%w: already in a game, leave it first", ErrInvalidState)
	}

	position, pair, err := m.queue.Join(p.id)
	if err != nil {
		m.log.Error("queue out of sync with player location", zap.String("playerId", p.id.Short()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	p.loc = Queued
	p.send(message.NewQueuedMessage(position))

	if pair != nil {
		return m.startSessionLocked(pair.First, pair.Second)
	}
	return nil
}

func (m *Manager) leaveQueueLocked(p *player) error {
	if p.loc != Queued {
		return fmt.Errorf("%w: not queued", ErrInvalidState)
	}
	if !m.queue.Leave(p.id) {
		m.log.Error("queued player missing from queue", zap.String("playerId", p.id.Short()))
	}
	p.loc = Idle
	p.send(message.NewLeftQueueMessage())
	return nil
}

func (m *Manager) leaveGameLocked(p *player) error {
	if p.loc != InSession {
		return fmt.Errorf("%w: not in a game", ErrInvalidState)
	}
	s, err := m.sessionLocked(p)
	if err != nil {
		return err
	}
	var out game.Outcome
	err = m.guardLocked(s, func() (err error) {
		out, err = s.Leave(p.id, message.ExplicitLeave)
		return err
	})
	if err != nil {
		return err
	}
	p.loc = Idle
	p.session = ""
	m.applyOutcomeLocked(s, out)
	return nil
}

func (m *Manager) requestRematchLocked(p *player) error {
	if p.loc != InSession {
		return fmt.Errorf("%w: no finished game to rematch", ErrInvalidState)
	}
	s, err := m.sessionLocked(p)
	if err != nil {
		return err
	}
	var out game.Outcome
	err = m.guardLocked(s, func() (err error) {
		out, err = s.VoteRematch(p.id)
		return err
	})
	if err != nil {
		return err
	}
	m.applyOutcomeLocked(s, out)
	return nil
}

func (m *Manager) withSessionLocked(p *player, fn func(s *game.Session) error) error {
	if p.loc != InSession {
		return fmt.Errorf("%w: not in a game", ErrInvalidState)
	}
	s, err := m.sessionLocked(p)
	if err != nil {
		return err
	}
	return m.guardLocked(s, func() error { return fn(s) })
}

func (m *Manager) sessionLocked(p *player) (*game.Session, error) {
	s, ok := m.sessions[p.session]
	if !ok {
		m.log.Error("player points at a missing session",
			zap.String("playerId", p.id.Short()),
			zap.String("gameId", p.session.Short()))
		missing := p.session
		p.loc = Idle
		p.session = ""
		return nil, fmt.Errorf("%w: session %s not found", ErrInvariantViolation, missing.Short())
	}
	return s, nil
}

// startSessionLocked turns a popped pair into a running session. Both players must
// still be registered: disconnects leave the queue under the same lock that pairs.
func (m *Manager) startSessionLocked(firstID, secondID uuidstring.ID) error {
	first, okFirst := m.players[firstID]
	second, okSecond := m.players[secondID]
	if !okFirst || !okSecond {
		for _, p := range []*player{first, second} {
			if p != nil {
				p.loc = Idle
				p.session = ""
			}
		}
		m.log.Error("paired a player that is gone",
			zap.String("first", firstID.Short()),
			zap.String("second", secondID.Short()))
		return fmt.Errorf("%w: paired player missing", ErrInvariantViolation)
	}

	s := game.NewSession(m.cfg,
		game.Member{ID: first.id, Peer: first.peer},
		game.Member{ID: second.id, Peer: second.peer},
		game.Options{
			Clock:   m.clock,
			Logger:  m.log,
			Events:  m.evts,
			Metrics: m.stats,
			Hooks:   sessionHooks{m: m},
		})
	m.sessions[s.ID()] = s
	for _, p := range []*player{first, second} {
		p.loc = InSession
		p.session = s.ID()
	}
	return m.guardLocked(s, s.Start)
}

// applyOutcomeLocked releases whatever a session call gave up. A closed session
// leaves the directory and its members go back to Idle; a mutual rematch starts a
// fresh session for the same pair.
func (m *Manager) applyOutcomeLocked(s *game.Session, out game.Outcome) {
	if !out.Closed {
		return
	}
	id := s.ID()
	delete(m.sessions, id)
	for _, pid := range s.Members() {
		if p, ok := m.players[pid]; ok && p.loc == InSession && p.session == id {
			p.loc = Idle
			p.session = ""
		}
	}
	if out.Rematch {
		members := s.Members()
		if err := m.startSessionLocked(members[0], members[1]); err != nil {
			m.log.Error("failed to start rematch", zap.String("gameId", id.Short()), zap.Error(err))
		}
	}
}

// guardLocked runs a session call and converts a panic into a torn down session so
// one broken match cannot take the process with it.
func (m *Manager) guardLocked(s *game.Session, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session call panicked", zap.String("gameId", s.ID().Short()), zap.Any("panic", r))
			m.teardownLocked(s)
			err = fmt.Errorf("%w: %v", ErrInvariantViolation, r)
		}
	}()
	return fn()
}

func (m *Manager) teardownLocked(s *game.Session) {
	out := func() (out game.Outcome) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("session teardown panicked", zap.String("gameId", s.ID().Short()), zap.Any("panic", r))
			}
		}()
		return s.Teardown()
	}()
	out.Closed = true
	out.Rematch = false
	m.applyOutcomeLocked(s, out)
}

func (m *Manager) updateGaugesLocked() {
	m.stats.SetPlayers(len(m.players))
	m.stats.SetQueueLength(m.queue.Len())
	m.stats.SetSessions(len(m.sessions))
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Players:  len(m.players),
		Queued:   m.queue.Len(),
		Sessions: len(m.sessions),
	}
}

// Location reports where pid is. The session id is empty unless the player is InSession.
func (m *Manager) Location(pid uuidstring.ID) (Location, uuidstring.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[pid]
	if !ok {
		return Idle, "", ErrUnknownPlayer
	}
	return p.loc, p.session, nil
}

// Session looks up a live session by id.
func (m *Manager) Session(id uuidstring.ID) (*game.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Shutdown tears down every session and refuses new players.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, s := range m.sessions {
		m.teardownLocked(s)
	}
	m.updateGaugesLocked()
}
