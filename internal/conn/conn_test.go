package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jeremiahvaughan/pipeline/internal/config"
	"github.com/jeremiahvaughan/pipeline/internal/duplex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testServer(t *testing.T, cfg *config.Config) (*httptest.Server, string) {
	t.Helper()
	logger := zap.NewNop()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := duplex.Upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		loop := New(wsConn, cfg, logger)
		go loop.Run(context.Background())
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	return server, url
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, payload, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	return string(payload)
}

func baseConfig() *config.Config {
	return &config.Config{
		AppVersion: "9.9.9",
		Services:   map[string]config.ServiceRecord{},
	}
}

func TestReadyFrameIsSentFirst(t *testing.T) {
	_, url := testServer(t, baseConfig())
	c := dial(t, url)

	assert.Equal(t, "ready:9.9.9", readText(t, c))
}

func TestPingReplyIsPong(t *testing.T) {
	_, url := testServer(t, baseConfig())
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "pong", readText(t, c))
}

func TestUnknownEventKindRepliesWithErrorAndStaysOpen(t *testing.T) {
	_, url := testServer(t, baseConfig())
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("wobble:foo")))
	assert.Equal(t, "error, unknown event kind", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "pong", readText(t, c))
}

func TestNavigateSettingsEmitsPatchThenLocation(t *testing.T) {
	_, url := testServer(t, baseConfig())
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("navigate:/settings")))
	patch := readText(t, c)
	assert.True(t, strings.HasPrefix(patch, "patch:"))
	assert.Contains(t, patch, `data-page="settings"`)
	assert.Equal(t, "location:/settings", readText(t, c))
}

func TestDeployStreamsLinesThenExitStatus(t *testing.T) {
	cfg := baseConfig()
	cfg.Services["svc-a"] = config.ServiceRecord{DeployCommand: "printf 'hello\\nworld\\n'"}
	_, url := testServer(t, cfg)
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("deploy:svc-a")))
	assert.Equal(t, "new_deployment: svc-a", readText(t, c))
	assert.Equal(t, "hello", readText(t, c))
	assert.Equal(t, "world", readText(t, c))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := c.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "child process exited:"))
}

func TestLoopStaysResponsiveWhileDeployPipesClosedButProcessRunning(t *testing.T) {
	cfg := baseConfig()
	cfg.Services["svc-a"] = config.ServiceRecord{DeployCommand: "exec >&- 2>&-; sleep 1"}
	_, url := testServer(t, cfg)
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("deploy:svc-a")))
	assert.Equal(t, "new_deployment: svc-a", readText(t, c))

	// The child closes its pipes almost immediately but keeps running for
	// another second. If Finalize ever blocked on cmd.Wait inside the loop,
	// this ping would stall until the child exits instead of replying
	// promptly.
	require.NoError(t, c.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "pong", readText(t, c))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := c.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "child process exited:"))
}

func TestTransportPingReceivesRealPongFrame(t *testing.T) {
	_, url := testServer(t, baseConfig())
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	pongCh := make(chan string, 1)
	c.SetPongHandler(func(appData string) error {
		pongCh <- appData
		return nil
	})

	// Drain reads in the background so the client's control-frame handlers
	// fire; gorilla/websocket only invokes them from within ReadMessage.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	require.NoError(t, c.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)))

	select {
	case <-pongCh:
	case err := <-readErr:
		t.Fatalf("client read loop exited before receiving a pong: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive a transport-level pong in reply to the ping")
	}
}

func TestSecondConcurrentDeployIsRefused(t *testing.T) {
	cfg := baseConfig()
	cfg.Services["svc-a"] = config.ServiceRecord{DeployCommand: "sleep 1"}
	_, url := testServer(t, cfg)
	c := dial(t, url)
	require.Equal(t, "ready:9.9.9", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("deploy:svc-a")))
	assert.Equal(t, "new_deployment: svc-a", readText(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("deploy:svc-a")))
	assert.Equal(t, "new_deployment: svc-a", readText(t, c))
	assert.Equal(t, "deploy already running", readText(t, c))
}
