// Package duplex is the Framed Socket collaborator of spec §2: it wraps an
// upgraded duplex connection and exposes non-blocking-flavored read/send of
// typed messages. Framing and the upgrade handshake itself are delegated to
// gorilla/websocket, per spec §1's Non-goal that the core does not
// reimplement frame-level handshake or framing.
package duplex

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writeAttemptWindow bounds how long a single Send attempt may take before
// it is treated as a would-block: long enough for an ordinary write to
// complete, short enough that a full kernel send buffer is reported back to
// the caller instead of stalling the connection loop.
const writeAttemptWindow = 10 * time.Millisecond

// Kind tags an inbound frame.
type Kind int

const (
	Text Kind = iota
	Binary
	// PingFrame marks an inbound transport-level Ping. The loop, not this
	// package, is responsible for queuing the Pong reply (through the
	// ordered outbox), so every outbound frame funnels through the same
	// send path.
	PingFrame
	// PongFrame marks an inbound transport-level Pong, counted as liveness
	// traffic and otherwise absorbed.
	PongFrame
)

// Inbound is a decoded frame delivered to the connection loop.
type Inbound struct {
	Kind    Kind
	Payload []byte
}

// Upgrader performs the HTTP-to-duplex handshake. It is a thin alias so
// callers don't need to import gorilla/websocket directly.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Socket is the Framed Socket collaborator: one per connection, owned
// exclusively by that connection's loop goroutine for writes, with a single
// background goroutine performing reads (gorilla/websocket supports exactly
// one concurrent reader and one concurrent writer).
type Socket struct {
	conn *websocket.Conn
}

// Wrap adapts an already-upgraded *websocket.Conn.
func Wrap(conn *websocket.Conn) *Socket {
	return &Socket{conn: conn}
}

// ReadLoop runs until ctx is canceled or the connection errors/closes,
// calling emit for every inbound frame (including absorbed control frames,
// per spec invariant 4: any inbound traffic counts as liveness). It is
// intended to be registered as a reactor.Source under reactor.TokenSocket.
func (s *Socket) ReadLoop(ctx context.Context, emit func(any)) {
	s.conn.SetPingHandler(func(appData string) error {
		emit(Inbound{Kind: PingFrame, Payload: []byte(appData)})
		return nil
	})
	s.conn.SetPongHandler(func(string) error {
		emit(Inbound{Kind: PongFrame})
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, payload, err := s.conn.ReadMessage()
		if err != nil {
			emit(err)
			return
		}

		switch typ {
		case websocket.TextMessage:
			emit(Inbound{Kind: Text, Payload: payload})
		case websocket.BinaryMessage:
			emit(Inbound{Kind: Binary, Payload: payload})
		}
	}
}

// trySend attempts one send within writeAttemptWindow, classifying the
// result the way the original classifies tungstenite's would-block/timeout
// io errors: a deadline exceeded is "would block," anything else fatal.
func (s *Socket) trySend(messageType int, payload []byte) (wouldBlock bool, err error) {
	if dlErr := s.conn.SetWriteDeadline(time.Now().Add(writeAttemptWindow)); dlErr != nil {
		return false, dlErr
	}
	err = s.conn.WriteMessage(messageType, payload)
	if err == nil {
		return false, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, nil
	}
	return false, err
}

// SendText attempts to send a text frame.
func (s *Socket) SendText(payload []byte) (wouldBlock bool, err error) {
	return s.trySend(websocket.TextMessage, payload)
}

// SendBinary attempts to send a binary frame.
func (s *Socket) SendBinary(payload []byte) (wouldBlock bool, err error) {
	return s.trySend(websocket.BinaryMessage, payload)
}

// SendPing attempts to send an application-level Ping control frame.
func (s *Socket) SendPing() (wouldBlock bool, err error) {
	return s.trySend(websocket.PingMessage, nil)
}

// SendPong attempts to send a Pong control frame in reply to an inbound
// Ping, queued through the ordered outbox like any other outbound message
// rather than written inline from the read goroutine.
func (s *Socket) SendPong() (wouldBlock bool, err error) {
	return s.trySend(websocket.PongMessage, nil)
}

// SendClose makes a best-effort attempt to send a Close frame; callers are
// expected to ignore its error, per spec §7's "best-effort Close."
func (s *Socket) SendClose() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeAttemptWindow))
	return s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeAttemptWindow))
}

// Close releases the underlying connection without attempting a graceful
// close handshake.
func (s *Socket) Close() error {
	return s.conn.Close()
}
