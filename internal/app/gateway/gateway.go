package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bkohler93/match3-backend/internal/app/state"
	"github.com/bkohler93/match3-backend/internal/shared/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Backend is everything the HTTP surface needs from the state manager.
type Backend interface {
	Dispatcher
	Stats() state.Stats
}

type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// ConnectInterval is the minimum time between upgrades from one address.
	ConnectInterval time.Duration
}

type Gateway struct {
	addr     string
	cfg      ClientConfig
	backend  Backend
	log      *zap.Logger
	stats    *metrics.Metrics
	hub      *Hub
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	engine   *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc
}

func NewGateway(addr string, cfg ClientConfig, backend Backend, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		addr:    addr,
		cfg:     cfg,
		backend: backend,
		log:     opts.Logger,
		stats:   opts.Metrics,
		hub:     NewHub(),
		limiter: NewRateLimiter(opts.ConnectInterval, nil),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
	g.engine = g.routes(opts.Gatherer)
	return g
}

func (g *Gateway) routes(gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(g.log))

	router.GET("/", g.serveWs)
	router.GET("/ws", g.serveWs)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, g.backend.Stats())
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func (g *Gateway) Handler() http.Handler {
	return g.engine
}

func (g *Gateway) serveWs(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusBadRequest, "expected a websocket upgrade")
		return
	}
	if g.limiter.Deny(c.ClientIP()) {
		c.String(http.StatusTooManyRequests, "too many connection attempts")
		return
	}
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	client := NewClient(conn, g.cfg, g.log, g.stats)
	ctx, ok := g.hub.Register(g.ctx, client)
	if !ok {
		client.writeClose(websocket.CloseGoingAway, "server shutting down")
		_ = conn.Close()
		return
	}
	defer g.hub.Unregister(client)

	_ = client.Serve(ctx, g.backend)
}

// Start serves until ctx is done, then stops accepting, closes every websocket and
// waits for their disconnects to reach the backend.
func (g *Gateway) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    g.addr,
		Handler: g.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info("listening for websocket connections", zap.String("addr", g.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		g.Close()
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	g.Close()
	return err
}

// Close ends every open connection.
func (g *Gateway) Close() {
	g.cancel()
	g.hub.CloseAll()
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}
