package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bkohler93/match3-backend/internal/shared/events"
	"github.com/bkohler93/match3-backend/internal/shared/message"
	"github.com/bkohler93/match3-backend/internal/shared/metrics"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
	"go.uber.org/zap"
)

const TickInterval = time.Second

var ErrInvalidState = errors.New("invalid state")

type State int

const (
	Starting State = iota
	Active
	Ending
	RematchPending
	Closed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Active:
		return "Active"
	case Ending:
		return "Ending"
	case RematchPending:
		return "RematchPending"
	case Closed:
		return "Closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	Duration       time.Duration
	RematchTimeout time.Duration
	CancelWindow   time.Duration
}

func (c Config) seconds() int {
	return int(c.Duration / TickInterval)
}

// Hooks are called from the session's own goroutines, never while the session lock
// is held. The owner is expected to call back into the session.
type Hooks interface {
	RematchExpired(id uuidstring.ID)
	Faulted(id uuidstring.ID, recovered any)
}

type Options struct {
	Clock   clock.Clock
	Logger  *zap.Logger
	Events  *events.Emitter
	Metrics *metrics.Metrics
	Hooks   Hooks
}

// Outcome tells the owner what a call did to the session's membership.
type Outcome struct {
	Closed  bool
	Rematch bool
	// Remaining lists the members still attached when the session closed.
	Remaining []uuidstring.ID
}

type Session struct {
	id     uuidstring.ID
	cfg    Config
	clock  clock.Clock
	log    *zap.Logger
	events *events.Emitter
	stats  *metrics.Metrics
	hooks  Hooks

	mu        sync.Mutex
	state     State
	reason    message.EndReason
	seats     [2]*seat
	remaining int
	garbage   garbageQueue
	stop      chan struct{}
	rematch   *clock.Timer
}

func NewSession(cfg Config, first, second Member, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	id := uuidstring.NewID()
	return &Session{
		id:     id,
		cfg:    cfg,
		clock:  opts.Clock,
		log:    opts.Logger.With(zap.String("gameId", id.Short())),
		events: opts.Events,
		stats:  opts.Metrics,
		hooks:  opts.Hooks,
		state:  Starting,
		seats: [2]*seat{
			{id: first.ID, peer: first.Peer, present: true},
			{id: second.ID, peer: second.Peer, present: true},
		},
		remaining: cfg.seconds(),
	}
}

func (s *Session) ID() uuidstring.ID {
	return s.id
}

// Members returns the pair in pairing order, present or not.
func (s *Session) Members() [2]uuidstring.ID {
	return [2]uuidstring.ID{s.seats[0].id, s.seats[1].id}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start notifies both players and begins the countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Starting {
		return fmt.Errorf("%w: start in %s", ErrInvalidState, s.state)
	}
	for i, st := range s.seats {
		st.send(message.NewMatchFoundMessage(s.id, s.seats[1-i].id))
	}
	seconds := s.cfg.seconds()
	for _, st := range s.seats {
		st.send(message.NewGameStartedMessage(s.id, seconds))
	}

	s.state = Active
	s.remaining = seconds
	s.stop = make(chan struct{})
	ticker := s.clock.Ticker(TickInterval)
	go s.run(ticker, s.stop)

	s.log.Info("match started",
		zap.String("first", s.seats[0].id.Short()),
		zap.String("second", s.seats[1].id.Short()),
		zap.Int("seconds", seconds))
	s.emitLocked(events.MatchStarted)
	return nil
}

func (s *Session) run(ticker *clock.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session timer panicked", zap.Any("panic", r))
			if s.hooks != nil {
				s.hooks.Faulted(s.id, r)
			} else {
				s.Teardown()
			}
		}
	}()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// tick advances the countdown by one second. It reports whether the countdown
// should keep running.
func (s *Session) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active {
		return false
	}
	s.expireGarbageLocked()
	s.remaining--
	for _, st := range s.seats {
		st.send(message.NewTimeUpdateMessage(s.remaining))
	}
	if s.remaining <= 0 {
		s.endLocked(message.TimeExpired, -1)
		return false
	}
	return true
}

// Swap relays a move to the opponent, queueing any attached garbage.
func (s *Session) Swap(pid uuidstring.ID, msg *message.SwapGemsMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, err := s.activeSeatLocked(pid)
	if err != nil {
		return err
	}
	if err := s.checkGarbageLocked(self, msg.Garbage); err != nil {
		return err
	}
	s.seats[1-self].send(message.NewOpponentSwapMessage(msg.Move()))
	s.attachGarbageLocked(self, msg.Garbage)
	return nil
}

// ReportScore overwrites the sender's score and broadcasts both scores. Garbage
// riding on the report is queued for the opponent.
func (s *Session) ReportScore(pid uuidstring.ID, score uint32, garbage *message.GarbagePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, err := s.activeSeatLocked(pid)
	if err != nil {
		return err
	}
	if err := s.checkGarbageLocked(self, garbage); err != nil {
		return err
	}
	s.seats[self].score = score
	for i, st := range s.seats {
		st.send(message.NewScoreBroadcastMessage(st.score, s.seats[1-i].score))
	}
	s.attachGarbageLocked(self, garbage)
	return nil
}

func (s *Session) SendGarbage(pid uuidstring.ID, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, err := s.activeSeatLocked(pid)
	if err != nil {
		return err
	}
	s.queueGarbageLocked(1-self, amount)
	return nil
}

// CancelGarbage spends amount against garbage still inside its window that targets pid.
func (s *Session) CancelGarbage(pid uuidstring.ID, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeSeatLocked(pid); err != nil {
		return err
	}
	for _, c := range s.garbage.cancel(pid, amount, s.clock.Now()) {
		for _, st := range s.seats {
			st.send(message.NewGarbageCancelledMessage(c.id, c.amount, pid))
		}
	}
	return nil
}

func (s *Session) RelaySpecial(pid uuidstring.ID, row, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, err := s.activeSeatLocked(pid)
	if err != nil {
		return err
	}
	s.seats[1-self].send(message.NewOpponentActivatedSpecialMessage(row, col))
	return nil
}

func (s *Session) RelayBooster(pid uuidstring.ID, boosterID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, err := s.activeSeatLocked(pid)
	if err != nil {
		return err
	}
	s.seats[1-self].send(message.NewOpponentActivatedBoosterMessage(boosterID))
	return nil
}

// Leave detaches pid. reason is ExplicitLeave or Disconnect. During a match the
// opponent is told and the match ends by score; while waiting on a rematch the
// session closes. Leaving a closed session, or leaving twice, does nothing.
func (s *Session) Leave(pid uuidstring.ID, reason message.EndReason) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	self := s.seatIndex(pid)
	if self < 0 {
		return Outcome{}, fmt.Errorf("%w: %s is not in session %s", ErrInvalidState, pid.Short(), s.id.Short())
	}
	if s.state == Closed || !s.seats[self].present {
		return Outcome{}, nil
	}

	other := s.seats[1-self]
	switch s.state {
	case Starting, Active:
		s.endLocked(reason, self)
		return Outcome{}, nil
	case RematchPending:
		s.seats[self].present = false
		s.seats[self].voted = false
		if reason == message.Disconnect {
			other.send(message.NewOpponentDisconnectedMessage())
		} else {
			other.send(message.NewOpponentLeftMessage())
		}
		return s.closeLocked(), nil
	}
	return Outcome{}, fmt.Errorf("%w: leave in %s", ErrInvalidState, s.state)
}

// VoteRematch records pid's vote. When both players have voted the session closes
// with Outcome.Rematch set and the owner starts a fresh session for the same pair.
func (s *Session) VoteRematch(pid uuidstring.ID) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	self := s.seatIndex(pid)
	if self < 0 || !s.seats[self].present {
		return Outcome{}, fmt.Errorf("%w: %s is not in session %s", ErrInvalidState, pid.Short(), s.id.Short())
	}
	if s.state != RematchPending {
		return Outcome{}, fmt.Errorf("%w: rematch vote in %s", ErrInvalidState, s.state)
	}

	me, other := s.seats[self], s.seats[1-self]
	if !other.present {
		me.send(message.NewRematchExpiredMessage())
		return s.closeLocked(), nil
	}
	if me.voted {
		return Outcome{}, nil
	}
	me.voted = true
	if !other.voted {
		other.send(message.NewOpponentRequestedRematchMessage())
		return Outcome{}, nil
	}

	for _, st := range s.seats {
		st.send(message.NewRematchAcceptedMessage())
	}
	out := s.closeLocked()
	out.Rematch = true
	s.emitLocked(events.RematchStarted)
	return out, nil
}

// ExpireRematch closes a session still waiting on rematch votes.
func (s *Session) ExpireRematch() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != RematchPending {
		return Outcome{}
	}
	for _, st := range s.seats {
		st.send(message.NewRematchExpiredMessage())
	}
	s.log.Debug("rematch window expired")
	return s.closeLocked()
}

// Teardown force closes the session. A live match ends as if both players dropped.
func (s *Session) Teardown() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return Outcome{}
	}
	if s.state == Starting || s.state == Active {
		for i, st := range s.seats {
			st.send(message.NewGameOverMessage(message.ResultFor(st.score, s.seats[1-i].score), message.Disconnect))
		}
		s.stats.MatchEnded(string(message.Disconnect))
	}
	s.log.Warn("session torn down", zap.String("state", s.state.String()))
	return s.closeLocked()
}

type Snapshot struct {
	ID               uuidstring.ID
	State            State
	Reason           message.EndReason
	Players          [2]uuidstring.ID
	Present          [2]bool
	Scores           [2]uint32
	SecondsRemaining int
	PendingGarbage   int
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:               s.id,
		State:            s.state,
		Reason:           s.reason,
		Players:          [2]uuidstring.ID{s.seats[0].id, s.seats[1].id},
		Present:          [2]bool{s.seats[0].present, s.seats[1].present},
		Scores:           [2]uint32{s.seats[0].score, s.seats[1].score},
		SecondsRemaining: s.remaining,
		PendingGarbage:   s.garbage.len(),
	}
}

func (s *Session) seatIndex(pid uuidstring.ID) int {
	for i, st := range s.seats {
		if st.id == pid {
			return i
		}
	}
	return -1
}

// activeSeatLocked finds pid's seat and checks the match is live. Every in-match
// event also flushes garbage whose window has passed.
func (s *Session) activeSeatLocked(pid uuidstring.ID) (int, error) {
	self := s.seatIndex(pid)
	if self < 0 || !s.seats[self].present {
		return -1, fmt.Errorf("%w: %s is not in session %s", ErrInvalidState, pid.Short(), s.id.Short())
	}
	if s.state != Active {
		return -1, fmt.Errorf("%w: match is %s", ErrInvalidState, s.state)
	}
	s.expireGarbageLocked()
	return self, nil
}

// checkGarbageLocked rejects an attack aimed at anyone but the sender's opponent.
func (s *Session) checkGarbageLocked(self int, g *message.GarbagePayload) error {
	if g == nil || g.Target.IsZero() || g.Target == s.seats[1-self].id {
		return nil
	}
	return fmt.Errorf("%w: garbage target %s is not the opponent", ErrInvalidState, g.Target.Short())
}

func (s *Session) attachGarbageLocked(self int, g *message.GarbagePayload) {
	if g != nil {
		s.queueGarbageLocked(1-self, *g.Amount)
	}
}

func (s *Session) queueGarbageLocked(target int, amount int) {
	st := s.seats[target]
	g := s.garbage.add(st.id, amount, s.clock.Now().Add(s.cfg.CancelWindow))
	st.send(message.NewIncomingGarbageMessage(g.id, g.amount, s.cfg.CancelWindow.Milliseconds()))
}

func (s *Session) expireGarbageLocked() {
	for _, g := range s.garbage.expire(s.clock.Now()) {
		for _, st := range s.seats {
			st.send(message.NewGarbageAppliedMessage(g.id, g.amount, g.target))
		}
	}
}

// endLocked moves a live match through Ending. leaver is the seat that left or
// dropped, or -1 when time ran out.
func (s *Session) endLocked(reason message.EndReason, leaver int) {
	s.stopCountdownLocked()
	s.state = Ending
	s.reason = reason
	s.garbage.clear()

	if leaver >= 0 {
		s.seats[leaver].present = false
		survivor := s.seats[1-leaver]
		if reason == message.Disconnect {
			survivor.send(message.NewOpponentDisconnectedMessage())
		} else {
			survivor.send(message.NewOpponentLeftMessage())
		}
	}
	for i, st := range s.seats {
		st.send(message.NewGameOverMessage(message.ResultFor(st.score, s.seats[1-i].score), reason))
	}

	s.log.Info("match ended",
		zap.String("reason", string(reason)),
		zap.Uint32("firstScore", s.seats[0].score),
		zap.Uint32("secondScore", s.seats[1].score))
	s.stats.MatchEnded(string(reason))
	s.emitLocked(events.MatchEnded)

	if !s.seats[0].present && !s.seats[1].present {
		s.closeLocked()
		return
	}
	s.state = RematchPending
	s.rematch = s.clock.AfterFunc(s.cfg.RematchTimeout, s.rematchExpired)
}

func (s *Session) rematchExpired() {
	if s.hooks != nil {
		s.hooks.RematchExpired(s.id)
		return
	}
	s.ExpireRematch()
}

func (s *Session) stopCountdownLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Session) closeLocked() Outcome {
	s.stopCountdownLocked()
	if s.rematch != nil {
		s.rematch.Stop()
		s.rematch = nil
	}
	s.garbage.clear()
	s.state = Closed

	var remaining []uuidstring.ID
	for _, st := range s.seats {
		if st.present {
			remaining = append(remaining, st.id)
		}
	}
	s.emitLocked(events.SessionClosed)
	return Outcome{Closed: true, Remaining: remaining}
}

func (s *Session) emitLocked(t events.Type) {
	if s.events == nil {
		return
	}
	ev := events.Event{
		Type:    t,
		GameID:  s.id,
		Players: []uuidstring.ID{s.seats[0].id, s.seats[1].id},
		At:      s.clock.Now().UTC(),
	}
	switch t {
	case events.MatchStarted:
		ev.DurationSeconds = s.cfg.seconds()
	case events.MatchEnded:
		ev.Reason = s.reason
		ev.Scores = map[uuidstring.ID]uint32{
			s.seats[0].id: s.seats[0].score,
			s.seats[1].id: s.seats[1].score,
		}
		ev.Results = map[uuidstring.ID]message.GameResult{
			s.seats[0].id: message.ResultFor(s.seats[0].score, s.seats[1].score),
			s.seats[1].id: message.ResultFor(s.seats[1].score, s.seats[0].score),
		}
	}
	s.events.Emit(ev)
}
