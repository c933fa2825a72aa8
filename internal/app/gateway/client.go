package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bkohler93/match3-backend/internal/app/state"
	"github.com/bkohler93/match3-backend/internal/shared/message"
	"github.com/bkohler93/match3-backend/internal/shared/metrics"
	"github.com/bkohler93/match3-backend/internal/shared/utils"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTooManyMalformed = errors.New("too many malformed messages")
	ErrOutboundFull     = errors.New("outbound buffer full")
)

// Dispatcher is the part of the state manager a connection talks to.
type Dispatcher interface {
	Register(peer state.Peer) (uuidstring.ID, error)
	Dispatch(pid uuidstring.ID, msg message.Message) error
	Disconnect(pid uuidstring.ID)
}

type ClientConfig struct {
	// MaxMalformed consecutive bad frames are tolerated; the next one closes the connection.
	MaxMalformed   int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	OutboundBuffer int
}

func (c ClientConfig) pingInterval() time.Duration {
	return c.IdleTimeout * 9 / 10
}

// Client bridges one websocket to the state manager. Outbound messages are queued on
// a bounded channel and written by a single writer.
type Client struct {
	ID    uuidstring.ID
	conn  *websocket.Conn
	cfg   ClientConfig
	log   *zap.Logger
	stats *metrics.Metrics

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewClient(conn *websocket.Conn, cfg ClientConfig, log *zap.Logger, stats *metrics.Metrics) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		conn:     conn,
		cfg:      cfg,
		log:      log,
		stats:    stats,
		outbound: make(chan []byte, cfg.OutboundBuffer),
		done:     make(chan struct{}),
	}
}

// Send queues msg without blocking. A full buffer means the peer cannot keep up and
// the connection is shut down, which the manager then sees as a disconnect.
func (c *Client) Send(msg message.Message) bool {
	data, err := message.Encode(msg)
	if err != nil {
		c.log.Error("failed to encode outbound message", zap.String("type", msg.GetDiscriminator()), zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbound <- data:
		return true
	default:
		c.log.Warn("outbound buffer full, dropping connection", zap.Int("buffer", cap(c.outbound)))
		c.shutdown(ErrOutboundFull)
		return false
	}
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.done)
	})
}

// Serve registers the client, runs its pumps until the connection ends and then
// reports the disconnect exactly once.
func (c *Client) Serve(ctx context.Context, d Dispatcher) error {
	id, err := d.Register(c)
	if err != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(c.cfg.WriteTimeout))
		_ = c.conn.Close()
		return err
	}
	c.ID = id
	c.log = c.log.With(zap.String("playerId", id.Short()))
	defer d.Disconnect(id)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.readPump(gCtx, d)
	})
	eg.Go(func() error {
		return c.writePump(gCtx)
	})
	eg.Go(func() error {
		return c.PingLoop(gCtx)
	})

	err = eg.Wait()
	if err == nil {
		err = c.closeErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Info("connection closed", zap.Error(err))
	} else {
		c.log.Debug("connection closed")
	}
	return err
}

func (c *Client) PingLoop(ctx context.Context) error {
	t := time.NewTicker(c.cfg.pingInterval())
	defer t.Stop()
	for {
		select {
		case <-t.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			if err != nil {
				c.shutdown(err)
				return nil
			}
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		}
	}
}

func (c *Client) writePump(ctx context.Context) error {
	defer c.conn.Close()
	defer c.shutdown(nil)

	for {
		select {
		case <-ctx.Done():
			c.writeClose(websocket.CloseGoingAway, "server shutting down")
			return nil
		case <-c.done:
			code, text := websocket.CloseNormalClosure, ""
			switch {
			case errors.Is(c.closeErr, ErrTooManyMalformed):
				code, text = websocket.ClosePolicyViolation, ErrTooManyMalformed.Error()
			case errors.Is(c.closeErr, ErrOutboundFull):
				code, text = websocket.CloseTryAgainLater, ErrOutboundFull.Error()
			}
			c.writeClose(code, text)
			return nil
		case data := <-c.outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("failed to write to websocket - %w", err)
			}
		}
	}
}

func (c *Client) writeClose(code int, text string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(c.cfg.WriteTimeout))
}

func (c *Client) readPump(ctx context.Context, d Dispatcher) error {
	defer c.shutdown(nil)

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	})

	malformed := 0
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || utils.ErrorsIsAny(err, net.ErrClosed, io.EOF) {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket closed by the client")
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket unexpectedly closed", zap.Error(err))
			}
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))

		msg, err := message.Decode(data)
		if err != nil {
			malformed++
			c.stats.Malformed()
			c.log.Debug("dropped malformed message", zap.Int("consecutive", malformed), zap.Error(err))
			if malformed > c.cfg.MaxMalformed {
				c.shutdown(ErrTooManyMalformed)
				return nil
			}
			continue
		}
		malformed = 0

		if err := d.Dispatch(c.ID, msg); err != nil {
			if errors.Is(err, state.ErrUnknownPlayer) {
				return err
			}
		}
	}
}
