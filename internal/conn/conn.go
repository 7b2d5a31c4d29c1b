// Package conn is the Connection Loop of spec §4.1: the per-connection
// event loop that owns a Framed Socket, a Readiness Multiplexer, an
// Outbox, and an optional Deploy Supervisor.
package conn

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jeremiahvaughan/pipeline/internal/config"
	"github.com/jeremiahvaughan/pipeline/internal/deploy"
	"github.com/jeremiahvaughan/pipeline/internal/duplex"
	"github.com/jeremiahvaughan/pipeline/internal/event"
	"github.com/jeremiahvaughan/pipeline/internal/event/query"
	"github.com/jeremiahvaughan/pipeline/internal/outbox"
	"github.com/jeremiahvaughan/pipeline/internal/reactor"
	"github.com/jeremiahvaughan/pipeline/internal/render"
	"go.uber.org/zap"
)

// writeRetryInterval caps how long the loop will wait on the multiplexer
// while the outbox is non-empty, so a would-block write gets retried
// promptly instead of waiting out the full ping deadline. Go's write path
// is synchronous rather than a separate "writable" readiness event, so this
// substitutes for the original's socket-writable registration.
const writeRetryInterval = 20 * time.Millisecond

// Loop owns every per-connection resource and runs until the connection
// ends, the Go analogue of spec §4.1's run(framed_socket, config).
type Loop struct {
	id     uuid.UUID
	logger *zap.Logger
	cfg    *config.Config

	socket  *duplex.Socket
	reactor *reactor.Reactor
	outbox  *outbox.Outbox
	deploy  *deploy.Deploy

	lastInbound  time.Time
	pingInFlight *time.Time
	pingInterval time.Duration
	pongTimeout  time.Duration
	wantWrite    bool

	// pendingExit holds the child's reaped Exit once ExitSource delivers
	// it. Finalize only runs once this is set AND l.deploy.Done(), so a
	// child that outlives its closed pipes never blocks the loop waiting
	// to be reaped: the loop just keeps going until the event arrives.
	pendingExit *deploy.Exit
}

// WantWrite reports the write-interest flag as of the end of the last
// completed iteration, matching spec §3's invariant 2.
func (l *Loop) WantWrite() bool {
	return l.wantWrite
}

// New prepares a Loop for a freshly upgraded connection. Run must be called
// to actually drive it.
func New(wsConn *websocket.Conn, cfg *config.Config, logger *zap.Logger) *Loop {
	id := uuid.New()
	return &Loop{
		id:           id,
		logger:       logger.Named("conn").With(zap.String("connection_id", id.String())),
		cfg:          cfg,
		socket:       duplex.Wrap(wsConn),
		reactor:      reactor.New(64),
		outbox:       outbox.New(),
		pingInterval: randDuration(config.PingIntervalRange[0], config.PingIntervalRange[1]),
		pongTimeout:  randDuration(config.PongTimeoutRange[0], config.PongTimeoutRange[1]),
	}
}

func randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// Run drives the connection until a terminating condition, per spec §4.1's
// termination conditions: graceful Close, pong timeout, or unrecoverable
// I/O error. It always cleans up registered sources before returning.
func (l *Loop) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer l.reactor.Close()
	defer l.socket.Close()

	l.reactor.Register(reactor.TokenSocket, l.socket.ReadLoop)

	l.lastInbound = time.Now()
	l.outbox.Push(outbox.TextMessage(fmt.Sprintf("ready:%s", l.cfg.AppVersion)))
	if !l.drainOutbound() {
		return
	}
	l.wantWrite = l.outbox.WantWrite()

	for {
		timeout := l.waitTimeout()
		ev, err := l.reactor.Wait(timeout)
		if err == nil {
			if !l.handleEvent(ctx, ev) {
				return
			}
		}

		if !l.drainOutbound() {
			return
		}
		l.wantWrite = l.outbox.WantWrite()

		if l.deploy != nil && l.deploy.Done() && l.pendingExit != nil {
			if !l.finalizeDeploy() {
				return
			}
		}

		if !l.liveness() {
			return
		}
	}
}

func (l *Loop) waitTimeout() time.Duration {
	now := time.Now()
	pingDeadline := l.lastInbound.Add(l.pingInterval)
	deadline := pingDeadline
	if l.pingInFlight != nil {
		pongDeadline := l.pingInFlight.Add(l.pongTimeout)
		if pongDeadline.Before(deadline) {
			deadline = pongDeadline
		}
	}
	timeout := deadline.Sub(now)
	if timeout < 0 {
		timeout = 0
	}
	if l.outbox.WantWrite() && timeout > writeRetryInterval {
		timeout = writeRetryInterval
	}
	return timeout
}

// handleEvent dispatches one reactor event. It returns false when the
// connection should terminate.
func (l *Loop) handleEvent(ctx context.Context, ev reactor.Event) bool {
	switch ev.Token {
	case reactor.TokenSocket:
		return l.handleSocketEvent(ctx, ev.Payload)
	case reactor.TokenStdout, reactor.TokenStderr:
		return l.handleDeployEvent(ev.Payload)
	case reactor.TokenDeployExit:
		return l.handleDeployExit(ev.Payload)
	default:
		return true
	}
}

func (l *Loop) handleSocketEvent(ctx context.Context, payload any) bool {
	if err, ok := payload.(error); ok {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			l.logger.Debug("socket closed by client")
		} else {
			l.logger.Debug("socket read error", zap.Error(err))
		}
		return false
	}

	in, ok := payload.(duplex.Inbound)
	if !ok {
		return true
	}

	l.lastInbound = time.Now()
	l.pingInFlight = nil

	switch in.Kind {
	case duplex.PingFrame:
		l.outbox.Push(outbox.Message{Kind: outbox.Pong})
	case duplex.PongFrame:
		// absorbed: counted as liveness traffic above, nothing to reply with.
	case duplex.Text:
		l.handleText(ctx, string(in.Payload))
	case duplex.Binary:
		// accepted but ignored, per spec §6.
	}
	return true
}

func (l *Loop) handleDeployEvent(payload any) bool {
	if l.deploy == nil {
		return true
	}
	if line, ok := payload.(deploy.Line); ok {
		l.outbox.Push(outbox.TextMessage(line.Text))
		return true
	}
	if s, ok := deploy.IsEOFSignal(payload); ok {
		l.deploy.MarkEOF(s)
	}
	return true
}

// handleDeployExit records the child's reaped Exit once ExitSource
// delivers it. It does not finalize by itself: Run only calls
// finalizeDeploy once both this and l.deploy.Done() are true, so a pipe
// that's still draining output doesn't lose it to an early "exited"
// message.
func (l *Loop) handleDeployExit(payload any) bool {
	if exit, ok := payload.(deploy.Exit); ok {
		l.pendingExit = &exit
	}
	return true
}

func (l *Loop) handleText(ctx context.Context, text string) {
	ev, err := event.Parse(text)
	if err != nil {
		perr := err.(*event.ParseError)
		l.outbox.Push(outbox.TextMessage(event.ErrorText(perr)))
		return
	}

	switch ev.Kind {
	case event.Ping:
		l.outbox.Push(outbox.TextMessage("pong"))
	case event.Deploy:
		l.handleDeploy(ctx, ev.Arg)
	case event.SearchServices:
		l.outbox.Push(outbox.TextMessage("patch:" + render.SearchFragment(l.cfg, ev.Arg)))
	case event.Navigate:
		l.handleNavigate(ev.Arg)
	}
}

func (l *Loop) handleDeploy(ctx context.Context, name string) {
	l.outbox.Push(outbox.TextMessage(fmt.Sprintf("new_deployment: %s", name)))

	if l.deploy != nil {
		l.outbox.Push(outbox.TextMessage("deploy already running"))
		return
	}

	svc := l.cfg.Services[name]
	d, err := deploy.Spawn(ctx, svc.DeployCommand, svc.Workspace)
	if err != nil {
		l.outbox.Push(outbox.TextMessage(fmt.Sprintf("deploy failed: %s", err)))
		return
	}

	l.deploy = d
	l.pendingExit = nil
	l.reactor.Register(reactor.TokenStdout, d.StdoutSource)
	l.reactor.Register(reactor.TokenStderr, d.StderrSource)
	l.reactor.Register(reactor.TokenDeployExit, d.ExitSource)
}

func (l *Loop) handleNavigate(path string) {
	pathOnly, queryStr, _ := strings.Cut(path, "?")
	queryMap := query.Parse(queryStr)

	result := render.Render(pathOnly, queryMap, l.cfg, render.Patch)
	switch result.Kind {
	case render.KindPatch:
		l.outbox.Push(outbox.TextMessage("patch:" + result.HTML))
		l.outbox.Push(outbox.TextMessage("location:" + path))
	case render.KindRedirect:
		l.outbox.Push(outbox.TextMessage("location:" + result.Location))
	default:
		l.outbox.Push(outbox.TextMessage("error: invalid navigation result"))
	}
}

func (l *Loop) finalizeDeploy() bool {
	exit := l.deploy.Finalize(*l.pendingExit)
	status := "exit status: unknown"
	if exit.State != nil {
		status = exit.State.String()
	}
	l.outbox.Push(outbox.TextMessage(fmt.Sprintf("child process exited: %s", status)))

	l.reactor.Deregister(reactor.TokenStdout)
	l.reactor.Deregister(reactor.TokenStderr)
	l.reactor.Deregister(reactor.TokenDeployExit)
	l.deploy = nil
	l.pendingExit = nil

	return l.drainOutbound()
}

// drainOutbound pops and sends queued messages until the outbox empties or
// a send would block, requeueing the blocked message at the head to
// preserve order (spec §4.3). It returns false on a fatal send error.
func (l *Loop) drainOutbound() bool {
	for {
		msg, ok := l.outbox.Pop()
		if !ok {
			return true
		}

		wouldBlock, err := l.send(msg)
		if err != nil {
			l.logger.Debug("fatal send error", zap.Error(err))
			return false
		}
		if wouldBlock {
			l.outbox.PushFront(msg)
			return true
		}
		if msg.Kind == outbox.Ping && l.pingInFlight == nil {
			now := time.Now()
			l.pingInFlight = &now
		}
	}
}

func (l *Loop) send(msg outbox.Message) (wouldBlock bool, err error) {
	switch msg.Kind {
	case outbox.Text:
		return l.socket.SendText(msg.Payload)
	case outbox.Binary:
		return l.socket.SendBinary(msg.Payload)
	case outbox.Ping:
		return l.socket.SendPing()
	case outbox.Pong:
		return l.socket.SendPong()
	case outbox.Close:
		return false, l.socket.SendClose()
	default:
		return false, nil
	}
}

// liveness applies spec §4.1 step 6: ping on idle, close on missed pong.
// Returns false when the connection should terminate.
func (l *Loop) liveness() bool {
	now := time.Now()

	if now.Sub(l.lastInbound) >= l.pingInterval && l.pingInFlight == nil {
		wouldBlock, err := l.socket.SendPing()
		switch {
		case err != nil:
			l.logger.Debug("fatal error sending ping", zap.Error(err))
			return false
		case wouldBlock:
			l.outbox.Push(outbox.Message{Kind: outbox.Ping})
		default:
			t := time.Now()
			l.pingInFlight = &t
		}
	}

	if l.pingInFlight != nil && now.Sub(*l.pingInFlight) >= l.pongTimeout {
		_ = l.socket.SendClose()
		return false
	}

	return true
}
