package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/securechat-server/internal/auth"
	"github.com/vovakirdan/securechat-server/internal/blob"
	"github.com/vovakirdan/securechat-server/internal/config"
	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/service/chats"
	"github.com/vovakirdan/securechat-server/internal/service/contacts"
	"github.com/vovakirdan/securechat-server/internal/service/delivery"
	"github.com/vovakirdan/securechat-server/internal/service/users"
	"github.com/vovakirdan/securechat-server/internal/store/sqlite"
)

type testEnv struct {
	ts  *httptest.Server
	hub *core.Hub
	jwt *auth.JWTConfig
}

type testUser struct {
	ID    string
	UID   string
	Token string
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)

	logger := zerolog.Nop()
	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}

	dir := t.TempDir()
	blobs, err := blob.NewLocalStore(dir, "/media", &logger)
	require.NoError(t, err)

	hub := core.NewHub(st, &logger, core.Options{})
	events := hub.Dispatcher()
	chatService := chats.New(st, events, nil, &logger)

	cfg := config.Default()
	cfg.BlobDir = dir
	cfg.BlobBaseURL = "/media"
	cfg.PingInterval = 0
	cfg.MaxUploadBytes = 1 << 20

	// Serve the production server's handler so /ws goes through the same mux.
	srv := NewServer(Deps{
		Hub:      hub,
		Gate:     auth.NewGate(jwtCfg),
		Auth:     auth.NewService(st, jwtCfg),
		Users:    users.New(st),
		Contacts: contacts.New(st, events),
		Chats:    chatService,
		Delivery: delivery.New(st, events, &logger),
		Blobs:    blobs,
	}, &cfg, &logger)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		hub.Wait()
		chatService.Wait()
		_ = st.Close()
	})

	return &testEnv{ts: ts, hub: hub, jwt: jwtCfg}
}

// doJSON sends body as JSON and decodes the response into out when non-nil.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) register(t *testing.T, name string) testUser {
	t.Helper()

	var resp struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID  string `json:"id"`
			UID string `json:"uid"`
		} `json:"user"`
	}
	status := e.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    strings.ToLower(name) + "@example.com",
		"password": "password123",
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	return testUser{ID: resp.User.ID, UID: resp.User.UID, Token: resp.AccessToken}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial connects with a bearer header and waits for hello.
func (e *testEnv) dial(t *testing.T, ctx context.Context, u testUser) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + u.Token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	readEvent(t, ctx, conn, "hello")
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"event": event, "data": json.RawMessage(payload)}))
}

// readEvent reads until an event with the given name arrives and returns its data.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) json.RawMessage {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for {
		var ev wireEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if ev.Event == name {
			return ev.Data
		}
	}
}

func decodeData[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
