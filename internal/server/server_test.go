package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rikiyaaa/auction-server/internal/auth"
	"github.com/Rikiyaaa/auction-server/internal/game"
	"github.com/Rikiyaaa/auction-server/internal/models"
)

// wireEvent is the decoded envelope as a client sees it.
type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sessionTokenPayload struct {
	Token    string    `json:"token"`
	PlayerID uuid.UUID `json:"playerId"`
	Name     string    `json:"name"`
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testRules() game.Rules {
	r := game.DefaultRules()
	r.TurnSeconds = 0
	r.PreviewSeconds = 0
	r.ConfirmSeconds = 0
	r.RestartSeconds = 0
	return r
}

func newTestServer(t *testing.T) (*GameServer, *httptest.Server) {
	t.Helper()
	auth.Init("server-test-secret")
	g := game.NewAuctionGame(testRules(), clockwork.NewFakeClock(), testLogger())
	s := New(g, testLogger())
	ts := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendAction(t *testing.T, ctx context.Context, conn *websocket.Conn, action models.GameAction) {
	t.Helper()
	msg, err := json.Marshal(action)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, msg))
}

// awaitEvent reads frames until one of the given type arrives.
func awaitEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType game.GameEventType) wireEvent {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", eventType)
		var ev wireEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == string(eventType) {
			return ev
		}
	}
}

func awaitPhase(t *testing.T, ctx context.Context, conn *websocket.Conn, phase game.Phase) {
	t.Helper()
	for {
		ev := awaitEvent(t, ctx, conn, game.EventGameState)
		var got string
		require.NoError(t, json.Unmarshal(ev.Payload, &got))
		if got == string(phase) {
			return
		}
	}
}

// joinByName sends a name join and returns the minted session token.
func joinByName(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) sessionTokenPayload {
	t.Helper()
	sendAction(t, ctx, conn, models.GameAction{
		Type:    models.ActionJoinGame,
		Payload: map[string]interface{}{"playerName": name},
	})
	ev := awaitEvent(t, ctx, conn, eventSessionToken)
	var payload sessionTokenPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	require.NotEmpty(t, payload.Token)
	return payload
}

func TestTokenReconnectClosesDisplacedSocket(t *testing.T) {
	s, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dialWS(t, ctx, ts)
	bound := joinByName(t, ctx, first, "Alice")

	second := dialWS(t, ctx, ts)
	sendAction(t, ctx, second, models.GameAction{
		Type:    models.ActionJoinGame,
		Payload: map[string]interface{}{"token": bound.Token},
	})
	rebound := awaitEvent(t, ctx, second, eventSessionToken)
	var payload sessionTokenPayload
	require.NoError(t, json.Unmarshal(rebound.Payload, &payload))
	assert.Equal(t, bound.PlayerID, payload.PlayerID, "token reclaims the same seat")

	// The displaced socket must be closed by the server so it cannot keep
	// acting for the player; draining it ends in a policy-violation close.
	var readErr error
	for i := 0; i < 64; i++ {
		if _, _, readErr = first.Read(ctx); readErr != nil {
			break
		}
	}
	require.Error(t, readErr, "displaced socket still readable")
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(readErr))

	// The displacement is not a player disconnect.
	assert.True(t, s.Game.HasPlayer(bound.PlayerID))
}

func TestBoundSocketRejoinsAfterRosterReset(t *testing.T) {
	s, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialWS(t, ctx, ts)
	joinByName(t, ctx, alice, "Alice")
	bob := dialWS(t, ctx, ts)
	joinByName(t, ctx, bob, "Bob")
	awaitPhase(t, ctx, alice, game.PhaseCardSelection)

	// Both seats vote the room back to the login screen.
	sendAction(t, ctx, alice, models.GameAction{Type: models.ActionVoteReset})
	sendAction(t, ctx, bob, models.GameAction{Type: models.ActionVoteReset})
	awaitPhase(t, ctx, alice, game.PhaseLobby)

	// The reset cleared the roster, so the old binding is stale. A join on
	// the same socket must go through as a fresh join, not a no-op.
	fresh := joinByName(t, ctx, alice, "Alice")
	assert.True(t, s.Game.HasPlayer(fresh.PlayerID), "rejoin after reset seats the player")
}
