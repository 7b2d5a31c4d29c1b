// Package server is the out-of-scope collaborator from spec §1: the plain
// TCP listener, the duplex-upgrade HTTP endpoint, and the fixed-size
// worker pool that runs one conn.Loop per accepted connection. None of
// this is the core's interesting engineering; it exists only so the core
// has somewhere to run.
package server

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jeremiahvaughan/pipeline/internal/config"
	"github.com/jeremiahvaughan/pipeline/internal/conn"
	"github.com/jeremiahvaughan/pipeline/internal/duplex"
	"github.com/xmidt-org/retry"
	"go.uber.org/zap"
)

// Server owns the HTTP listener, static-asset mount, and worker pool.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	http   *http.Server
	pool   *pool
}

// New builds a Server bound to cfg.Listen, serving cfg.StaticDir under
// /static and upgrading every other request to the duplex Connection Loop.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	p := newPool(cfg.MaxUsers, logger)

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := duplex.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("upgrade failed", zap.Error(err))
			return
		}
		loop := conn.New(wsConn, cfg, logger)
		if !p.submit(func(ctx context.Context) { loop.Run(ctx) }) {
			logger.Warn("worker pool closed, rejecting connection")
			_ = wsConn.Close()
		}
	})

	return &Server{
		cfg:    cfg,
		logger: logger.Named("server"),
		http:   &http.Server{Addr: cfg.Listen, Handler: mux},
		pool:   p,
	}
}

// Start begins accepting connections. It runs until the listener fails or
// Stop is called, retrying transient Accept errors with the same backoff
// shape the teacher's RetryPolicy config carries for reconnects.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}

	backoff := retry.Config{
		Interval:    100 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      1.0 / 3.0,
		MaxInterval: 5 * time.Second,
	}

	err = s.http.Serve(&acceptRetryListener{Listener: ln, backoff: backoff})
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// acceptRetryListener wraps a net.Listener, backing off between retries of
// a temporary Accept error instead of spinning or giving up immediately.
type acceptRetryListener struct {
	net.Listener
	backoff retry.Config
}

func (l *acceptRetryListener) Accept() (net.Conn, error) {
	delay := l.backoff.Interval
	for {
		c, err := l.Listener.Accept()
		if err == nil {
			return c, nil
		}
		var ne net.Error
		if !asNetError(err, &ne) || !ne.Temporary() {
			return nil, err
		}

		jittered := delay + time.Duration(rand.Float64()*l.backoff.Jitter*float64(delay))
		time.Sleep(jittered)

		delay = time.Duration(float64(delay) * l.backoff.Multiplier)
		if delay > l.backoff.MaxInterval {
			delay = l.backoff.MaxInterval
		}
	}
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}

// Stop gracefully shuts down the HTTP listener and drains the worker pool.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	s.pool.close()
	return nil
}

// pool is a fixed-size worker pool: exactly config.MaxUsers goroutines pull
// connection-loop tasks from a shared queue, mirroring the teacher's
// pattern of a bounded number of long-lived goroutines over one shared
// channel instead of spawning unboundedly.
type pool struct {
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPool(size int, logger *zap.Logger) *pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{
		tasks:  make(chan func(context.Context)),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(logger)
	}
	return p
}

func (p *pool) worker(logger *zap.Logger) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("recovered panic in connection worker", zap.Any("panic", r))
					}
				}()
				task(p.ctx)
			}()
		}
	}
}

// submit enqueues task, returning false if the pool has been closed.
func (p *pool) submit(task func(context.Context)) bool {
	select {
	case p.tasks <- task:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *pool) close() {
	p.cancel()
	close(p.tasks)
	p.wg.Wait()
}
