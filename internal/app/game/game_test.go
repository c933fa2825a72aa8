package game

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bkohler93/match3-backend/internal/shared/message"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePeer struct {
	mu      sync.Mutex
	msgs    []message.Message
	panicOn string
}

func (p *fakePeer) Send(msg message.Message) bool {
	if p.panicOn != "" && msg.GetDiscriminator() == p.panicOn {
		panic("peer exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return true
}

func (p *fakePeer) all() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]message.Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}

func (p *fakePeer) types() []string {
	var out []string
	for _, m := range p.all() {
		out = append(out, m.GetDiscriminator())
	}
	return out
}

func ofType[T message.Message](p *fakePeer) []T {
	var out []T
	for _, m := range p.all() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeHooks struct {
	mu      sync.Mutex
	expired []uuidstring.ID
	faulted []uuidstring.ID
}

func (h *fakeHooks) RematchExpired(id uuidstring.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expired = append(h.expired, id)
}

func (h *fakeHooks) Faulted(id uuidstring.ID, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faulted = append(h.faulted, id)
}

func (h *fakeHooks) faultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.faulted)
}

var testConfig = Config{
	Duration:       90 * time.Second,
	RematchTimeout: 30 * time.Second,
	CancelWindow:   2500 * time.Millisecond,
}

type fixture struct {
	s    *Session
	mock *clock.Mock
	a, b *fakePeer
	idA  uuidstring.ID
	idB  uuidstring.ID
}

func newFixture(t *testing.T, cfg Config, hooks Hooks) *fixture {
	t.Helper()
	f := &fixture{
		mock: clock.NewMock(),
		a:    &fakePeer{},
		b:    &fakePeer{},
		idA:  uuidstring.NewID(),
		idB:  uuidstring.NewID(),
	}
	f.s = NewSession(cfg, Member{ID: f.idA, Peer: f.a}, Member{ID: f.idB, Peer: f.b}, Options{
		Clock:  f.mock,
		Logger: zaptest.NewLogger(t),
		Hooks:  hooks,
	})
	t.Cleanup(func() { f.s.Teardown() })
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.s.Start())
}

// advance moves the mock clock one tick and waits until both peers saw the update.
func (f *fixture) advance(t *testing.T, want int) {
	t.Helper()
	f.mock.Add(TickInterval)
	require.Eventually(t, func() bool {
		for _, p := range []*fakePeer{f.a, f.b} {
			updates := ofType[*message.TimeUpdateMessage](p)
			if len(updates) == 0 || updates[len(updates)-1].SecondsRemaining != want {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
}

func TestSessionStart(t *testing.T) {
	f := newFixture(t, testConfig, nil)
	f.start(t)

	assert.Equal(t, Active, f.s.State())
	for _, tc := range []struct {
		peer     *fakePeer
		opponent uuidstring.ID
	}{{f.a, f.idB}, {f.b, f.idA}} {
		msgs := tc.peer.all()
		require.Len(t, msgs, 2)
		found, ok := msgs[0].(*message.MatchFoundMessage)
		require.True(t, ok)
		assert.Equal(t, tc.opponent, found.OpponentID)
		assert.Equal(t, f.s.ID(), found.GameID)
		started, ok := msgs[1].(*message.GameStartedMessage)
		require.True(t, ok)
		assert.Equal(t, 90, started.Duration)
	}

	assert.ErrorIs(t, f.s.Start(), ErrInvalidState)
}

func TestSessionCountdown(t *testing.T) {
	cfg := testConfig
	cfg.Duration = 3 * time.Second
	f := newFixture(t, cfg, nil)
	f.start(t)

	require.NoError(t, f.s.ReportScore(f.idA, 80, nil))
	require.NoError(t, f.s.ReportScore(f.idB, 50, nil))

	f.advance(t, 2)
	f.advance(t, 1)
	f.advance(t, 0)

	require.Eventually(t, func() bool { return f.s.State() == RematchPending }, time.Second, time.Millisecond)

	for _, p := range []*fakePeer{f.a, f.b} {
		var seconds []int
		for _, u := range ofType[*message.TimeUpdateMessage](p) {
			seconds = append(seconds, u.SecondsRemaining)
		}
		assert.Equal(t, []int{2, 1, 0}, seconds)
	}

	overA := ofType[*message.GameOverMessage](f.a)
	overB := ofType[*message.GameOverMessage](f.b)
	require.Len(t, overA, 1)
	require.Len(t, overB, 1)
	assert.Equal(t, message.Win, overA[0].Winner)
	assert.Equal(t, message.Loss, overB[0].Winner)
	assert.Equal(t, message.TimeExpired, overA[0].Reason)

	// further time passing never produces another game over
	f.mock.Add(5 * TickInterval)
	assert.Len(t, ofType[*message.GameOverMessage](f.a), 1)
}

func TestSessionTickDirect(t *testing.T) {
	cfg := testConfig
	cfg.Duration = 2 * time.Second
	f := newFixture(t, cfg, nil)
	f.start(t)

	assert.True(t, f.s.tick())
	assert.Equal(t, 1, f.s.Snapshot().SecondsRemaining)
	assert.False(t, f.s.tick())
	assert.Equal(t, 0, f.s.Snapshot().SecondsRemaining)
	assert.False(t, f.s.tick(), "ticks after the match are ignored")
	assert.Len(t, ofType[*message.TimeUpdateMessage](f.a), 2)
	assert.Len(t, ofType[*message.GameOverMessage](f.a), 1)
	assert.Equal(t, message.Tie, ofType[*message.GameOverMessage](f.a)[0].Winner)
}

func TestSessionRelay(t *testing.T) {
	f := newFixture(t, testConfig, nil)
	f.start(t)

	t.Run("swap goes to the opponent only", func(t *testing.T) {
		mv := message.Move{Row1: 1, Col1: 2, Row2: 1, Col2: 3}
		require.NoError(t, f.s.Swap(f.idA, message.NewSwapGemsMessage(mv)))
		swaps := ofType[*message.OpponentSwapMessage](f.b)
		require.Len(t, swaps, 1)
		assert.Equal(t, mv, swaps[0].Move)
		assert.Empty(t, ofType[*message.OpponentSwapMessage](f.a))
	})

	t.Run("scores are relative to the recipient", func(t *testing.T) {
		require.NoError(t, f.s.ReportScore(f.idA, 30, nil))
		require.NoError(t, f.s.ReportScore(f.idB, 40, nil))

		scoresA := ofType[*message.ScoreBroadcastMessage](f.a)
		scoresB := ofType[*message.ScoreBroadcastMessage](f.b)
		require.Len(t, scoresA, 2)
		require.Len(t, scoresB, 2)
		assert.Equal(t, uint32(30), scoresA[1].PlayerScore)
		assert.Equal(t, uint32(40), scoresA[1].OpponentScore)
		assert.Equal(t, uint32(40), scoresB[1].PlayerScore)
		assert.Equal(t, uint32(30), scoresB[1].OpponentScore)

		require.NoError(t, f.s.ReportScore(f.idA, 10, nil))
		assert.Equal(t, [2]uint32{10, 40}, f.s.Snapshot().Scores)
	})

	t.Run("special and booster", func(t *testing.T) {
		require.NoError(t, f.s.RelaySpecial(f.idB, 4, 5))
		require.NoError(t, f.s.RelayBooster(f.idB, 2))
		specials := ofType[*message.OpponentActivatedSpecialMessage](f.a)
		boosters := ofType[*message.OpponentActivatedBoosterMessage](f.a)
		require.Len(t, specials, 1)
		require.Len(t, boosters, 1)
		assert.Equal(t, 5, specials[0].Col)
		assert.Equal(t, 2, boosters[0].BoosterID)
	})

	t.Run("unknown player", func(t *testing.T) {
		assert.ErrorIs(t, f.s.ReportScore(uuidstring.NewID(), 1, nil), ErrInvalidState)
	})
}

func TestSessionGarbage(t *testing.T) {
	t.Run("cancel inside the window", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		require.NoError(t, f.s.SendGarbage(f.idA, 3))
		incoming := ofType[*message.IncomingGarbageMessage](f.b)
		require.Len(t, incoming, 1)
		assert.Equal(t, 3, incoming[0].Amount)
		assert.Equal(t, int64(2500), incoming[0].CancelWindowMs)
		assert.Empty(t, ofType[*message.IncomingGarbageMessage](f.a))

		require.NoError(t, f.s.CancelGarbage(f.idB, 2))
		for _, p := range []*fakePeer{f.a, f.b} {
			cancelled := ofType[*message.GarbageCancelledMessage](p)
			require.Len(t, cancelled, 1)
			assert.Equal(t, incoming[0].GarbageID, cancelled[0].GarbageID)
			assert.Equal(t, 2, cancelled[0].Amount)
			assert.Equal(t, f.idB, cancelled[0].TargetID)
		}

		f.mock.Add(3 * time.Second)
		require.NoError(t, f.s.ReportScore(f.idA, 0, nil))
		for _, p := range []*fakePeer{f.a, f.b} {
			applied := ofType[*message.GarbageAppliedMessage](p)
			require.Len(t, applied, 1)
			assert.Equal(t, 1, applied[0].Amount)
		}
		assert.Equal(t, 0, f.s.Snapshot().PendingGarbage)
	})

	t.Run("cancel after the deadline does nothing", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		require.NoError(t, f.s.SendGarbage(f.idA, 2))
		f.mock.Add(testConfig.CancelWindow)
		require.NoError(t, f.s.CancelGarbage(f.idB, 2))

		assert.Empty(t, ofType[*message.GarbageCancelledMessage](f.b))
		applied := ofType[*message.GarbageAppliedMessage](f.b)
		require.Len(t, applied, 1)
		assert.Equal(t, 2, applied[0].Amount)
	})

	t.Run("oldest deadline first with partial reduction", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		require.NoError(t, f.s.SendGarbage(f.idA, 2))
		f.mock.Add(500 * time.Millisecond)
		require.NoError(t, f.s.Swap(f.idA, &message.SwapGemsMessage{
			Row1: intp(0), Col1: intp(0), Row2: intp(0), Col2: intp(1),
			Garbage: &message.GarbagePayload{Amount: intp(3), Target: f.idB},
		}))
		incoming := ofType[*message.IncomingGarbageMessage](f.b)
		require.Len(t, incoming, 2)

		require.NoError(t, f.s.CancelGarbage(f.idB, 4))
		cancelled := ofType[*message.GarbageCancelledMessage](f.a)
		require.Len(t, cancelled, 2)
		assert.Equal(t, incoming[0].GarbageID, cancelled[0].GarbageID)
		assert.Equal(t, 2, cancelled[0].Amount)
		assert.Equal(t, incoming[1].GarbageID, cancelled[1].GarbageID)
		assert.Equal(t, 2, cancelled[1].Amount)
		assert.Equal(t, 1, f.s.Snapshot().PendingGarbage)
	})

	t.Run("garbage aimed at yourself is rejected", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		err := f.s.Swap(f.idA, &message.SwapGemsMessage{
			Row1: intp(0), Col1: intp(0), Row2: intp(0), Col2: intp(1),
			Garbage: &message.GarbagePayload{Amount: intp(1), Target: f.idA},
		})
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Empty(t, ofType[*message.OpponentSwapMessage](f.b))
	})

	t.Run("score report carries garbage", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		require.NoError(t, f.s.ReportScore(f.idA, 30, &message.GarbagePayload{Amount: intp(4)}))
		scores := ofType[*message.ScoreBroadcastMessage](f.b)
		require.Len(t, scores, 1)
		assert.Equal(t, uint32(30), scores[0].OpponentScore)
		incoming := ofType[*message.IncomingGarbageMessage](f.b)
		require.Len(t, incoming, 1)
		assert.Equal(t, 4, incoming[0].Amount)
		assert.Empty(t, ofType[*message.IncomingGarbageMessage](f.a))
		assert.Equal(t, 1, f.s.Snapshot().PendingGarbage)
	})

	t.Run("score report with misdirected garbage changes nothing", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		err := f.s.ReportScore(f.idA, 30, &message.GarbagePayload{Amount: intp(2), Target: uuidstring.NewID()})
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Empty(t, ofType[*message.ScoreBroadcastMessage](f.b))
		assert.Equal(t, [2]uint32{0, 0}, f.s.Snapshot().Scores)
		assert.Equal(t, 0, f.s.Snapshot().PendingGarbage)
	})

	t.Run("pending garbage is dropped when the match ends", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)

		require.NoError(t, f.s.SendGarbage(f.idA, 2))
		_, err := f.s.Leave(f.idA, message.ExplicitLeave)
		require.NoError(t, err)
		assert.Equal(t, 0, f.s.Snapshot().PendingGarbage)
	})
}

func TestSessionDisconnect(t *testing.T) {
	f := newFixture(t, testConfig, nil)
	f.start(t)
	require.NoError(t, f.s.ReportScore(f.idA, 100, nil))
	require.NoError(t, f.s.ReportScore(f.idB, 20, nil))
	before := len(f.a.all())

	out, err := f.s.Leave(f.idA, message.Disconnect)
	require.NoError(t, err)
	assert.False(t, out.Closed)
	assert.Equal(t, RematchPending, f.s.State())
	assert.Len(t, f.a.all(), before, "nothing is sent to the departed player")

	types := f.b.types()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, []string{"OpponentDisconnected", "GameOver"}, types[len(types)-2:])
	assert.Len(t, ofType[*message.OpponentDisconnectedMessage](f.b), 1)
	over := ofType[*message.GameOverMessage](f.b)
	require.Len(t, over, 1)
	assert.Equal(t, message.Loss, over[0].Winner)
	assert.Equal(t, message.Disconnect, over[0].Reason)

	t.Run("duplicate disconnect is ignored", func(t *testing.T) {
		out, err := f.s.Leave(f.idA, message.Disconnect)
		require.NoError(t, err)
		assert.Equal(t, Outcome{}, out)
		assert.Len(t, ofType[*message.OpponentDisconnectedMessage](f.b), 1)
	})

	t.Run("survivor rematch vote closes the session", func(t *testing.T) {
		out, err := f.s.VoteRematch(f.idB)
		require.NoError(t, err)
		assert.True(t, out.Closed)
		assert.False(t, out.Rematch)
		assert.Equal(t, []uuidstring.ID{f.idB}, out.Remaining)
		assert.Len(t, ofType[*message.RematchExpiredMessage](f.b), 1)
		assert.Equal(t, Closed, f.s.State())
	})
}

func TestSessionExplicitLeave(t *testing.T) {
	f := newFixture(t, testConfig, nil)
	f.start(t)

	_, err := f.s.Leave(f.idB, message.ExplicitLeave)
	require.NoError(t, err)

	types := f.a.types()
	assert.Equal(t, []string{"OpponentLeft", "GameOver"}, types[len(types)-2:])
	over := ofType[*message.GameOverMessage](f.a)
	assert.Equal(t, message.ExplicitLeave, over[0].Reason)
	assert.Equal(t, message.Tie, over[0].Winner)

	assert.ErrorIs(t, f.s.Swap(f.idA, message.NewSwapGemsMessage(message.Move{})), ErrInvalidState)

	out, err := f.s.Leave(f.idA, message.ExplicitLeave)
	require.NoError(t, err)
	assert.True(t, out.Closed)
	assert.Empty(t, out.Remaining)
}

func TestSessionRematch(t *testing.T) {
	setup := func(t *testing.T, hooks Hooks) *fixture {
		cfg := testConfig
		cfg.Duration = time.Second
		f := newFixture(t, cfg, hooks)
		f.start(t)
		require.False(t, f.s.tick())
		require.Equal(t, RematchPending, f.s.State())
		return f
	}

	t.Run("both vote", func(t *testing.T) {
		f := setup(t, nil)

		out, err := f.s.VoteRematch(f.idA)
		require.NoError(t, err)
		assert.False(t, out.Closed)
		assert.Len(t, ofType[*message.OpponentRequestedRematchMessage](f.b), 1)
		assert.Empty(t, ofType[*message.OpponentRequestedRematchMessage](f.a))

		out, err = f.s.VoteRematch(f.idA)
		require.NoError(t, err)
		assert.False(t, out.Closed, "repeat vote is ignored")

		out, err = f.s.VoteRematch(f.idB)
		require.NoError(t, err)
		assert.True(t, out.Closed)
		assert.True(t, out.Rematch)
		assert.ElementsMatch(t, []uuidstring.ID{f.idA, f.idB}, out.Remaining)
		assert.Len(t, ofType[*message.RematchAcceptedMessage](f.a), 1)
		assert.Len(t, ofType[*message.RematchAcceptedMessage](f.b), 1)
		assert.Equal(t, Closed, f.s.State())
	})

	t.Run("timeout closes and notifies", func(t *testing.T) {
		f := setup(t, nil)
		_, err := f.s.VoteRematch(f.idA)
		require.NoError(t, err)

		f.mock.Add(testConfig.RematchTimeout)
		require.Eventually(t, func() bool { return f.s.State() == Closed }, time.Second, time.Millisecond)
		assert.Len(t, ofType[*message.RematchExpiredMessage](f.a), 1)
		assert.Len(t, ofType[*message.RematchExpiredMessage](f.b), 1)
	})

	t.Run("timeout goes through hooks", func(t *testing.T) {
		hooks := &fakeHooks{}
		f := setup(t, hooks)
		f.mock.Add(testConfig.RematchTimeout)
		require.Eventually(t, func() bool {
			hooks.mu.Lock()
			defer hooks.mu.Unlock()
			return len(hooks.expired) == 1
		}, time.Second, time.Millisecond)
		assert.Equal(t, RematchPending, f.s.State(), "the owner decides when to expire")

		out := f.s.ExpireRematch()
		assert.True(t, out.Closed)
		assert.Equal(t, Outcome{}, f.s.ExpireRematch())
	})

	t.Run("leaving while the opponent waits", func(t *testing.T) {
		f := setup(t, nil)
		out, err := f.s.Leave(f.idA, message.ExplicitLeave)
		require.NoError(t, err)
		assert.True(t, out.Closed)
		assert.Equal(t, []uuidstring.ID{f.idB}, out.Remaining)
		assert.Len(t, ofType[*message.OpponentLeftMessage](f.b), 1)
	})

	t.Run("vote during a live match", func(t *testing.T) {
		f := newFixture(t, testConfig, nil)
		f.start(t)
		_, err := f.s.VoteRematch(f.idA)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestSessionTeardown(t *testing.T) {
	f := newFixture(t, testConfig, nil)
	f.start(t)

	out := f.s.Teardown()
	assert.True(t, out.Closed)
	assert.ElementsMatch(t, []uuidstring.ID{f.idA, f.idB}, out.Remaining)
	over := ofType[*message.GameOverMessage](f.a)
	require.Len(t, over, 1)
	assert.Equal(t, message.Disconnect, over[0].Reason)

	assert.Equal(t, Outcome{}, f.s.Teardown())
	out, err := f.s.Leave(f.idA, message.Disconnect)
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, out)
}

func TestSessionTimerPanic(t *testing.T) {
	hooks := &fakeHooks{}
	f := newFixture(t, testConfig, hooks)
	f.a.panicOn = string(message.TimeUpdate)
	f.start(t)

	f.mock.Add(TickInterval)
	require.Eventually(t, func() bool { return hooks.faultCount() == 1 }, time.Second, time.Millisecond)

	// the lock was released on the way out
	assert.Equal(t, Active, f.s.State())
	f.a.panicOn = ""
	assert.True(t, f.s.Teardown().Closed)
}

func intp(v int) *int {
	return &v
}
