package events

import (
	"context"
	"sync"
	"time"

	"github.com/bkohler93/match3-backend/internal/shared/message"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
	"go.uber.org/zap"
)

type Type string

const (
	MatchStarted   Type = "match_started"
	MatchEnded     Type = "match_ended"
	RematchStarted Type = "rematch_started"
	SessionClosed  Type = "session_closed"
)

// Event is an outbound notice about a session's lifecycle. Nothing reads it back.
type Event struct {
	Type            Type                                 `json:"type"`
	GameID          uuidstring.ID                        `json:"game_id"`
	Players         []uuidstring.ID                      `json:"players"`
	Scores          map[uuidstring.ID]uint32             `json:"scores,omitempty"`
	Reason          message.EndReason                    `json:"reason,omitempty"`
	Results         map[uuidstring.ID]message.GameResult `json:"results,omitempty"`
	DurationSeconds int                                  `json:"duration_seconds,omitempty"`
	At              time.Time                            `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// Emitter publishes events off the caller's goroutine so game code never blocks on
// the backend. Failures are logged and dropped.
type Emitter struct {
	pub     Publisher
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewEmitter(pub Publisher, timeout time.Duration, log *zap.Logger) *Emitter {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{pub: pub, timeout: timeout, log: log}
}

func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.pub.Publish(ctx, ev); err != nil {
			e.log.Warn("publish match event",
				zap.String("type", string(ev.Type)),
				zap.String("gameId", ev.GameID.String()),
				zap.Error(err))
		}
	}()
}

// Close waits for in-flight publishes and closes the publisher.
func (e *Emitter) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return e.pub.Close()
}
