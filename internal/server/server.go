// Package server owns the websocket transport: it accepts connections,
// resolves session identity, funnels decoded actions into the game core,
// and fans events back out. The core never sees a socket; it sees the
// broadcast callbacks wired here.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/auth"
	"github.com/Rikiyaaa/auction-server/internal/game"
	"github.com/Rikiyaaa/auction-server/internal/models"
)

// eventSessionToken delivers the signed reconnect token after a join.
const eventSessionToken game.GameEventType = "sessionToken"

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// session binds one live websocket to one player identity. Events are
// enqueued on send; a dedicated pump owns all writes to the connection.
type session struct {
	playerID   uuid.UUID
	playerName string
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// enqueue hands a marshaled event to the write pump without ever blocking;
// it is called with the game lock held. A full buffer drops the event — the
// client recovers from the next full snapshot.
func (s *session) enqueue(msg []byte) bool {
	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// GameServer is the transport for a single auction room.
type GameServer struct {
	Game *game.AuctionGame
	log  *logrus.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// New wires a GameServer to the room's broadcast callbacks.
func New(g *game.AuctionGame, log *logrus.Logger) *GameServer {
	if log == nil {
		log = logrus.New()
	}
	s := &GameServer{
		Game:     g,
		log:      log,
		sessions: make(map[uuid.UUID]*session),
	}
	g.BroadcastFn = s.broadcast
	g.BroadcastToPlayerFn = s.broadcastTo
	return s
}

// broadcast fans an event out to every bound session. Invoked with the game
// lock held; it only enqueues.
func (s *GameServer) broadcast(ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Error("marshal broadcast event")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if !sess.enqueue(msg) {
			s.log.WithFields(logrus.Fields{"player": sess.playerName, "event": ev.Type}).Warn("dropped event: send buffer full")
		}
	}
}

// broadcastTo targets a single player's session, if one is bound.
func (s *GameServer) broadcastTo(playerID uuid.UUID, ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		s.log.WithError(err).WithField("event", ev.Type).Error("marshal targeted event")
		return
	}
	s.mu.Lock()
	sess := s.sessions[playerID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if !sess.enqueue(msg) {
		s.log.WithFields(logrus.Fields{"player": sess.playerName, "event": ev.Type}).Warn("dropped targeted event: send buffer full")
	}
}

// register binds a session as the player's live connection, displacing any
// previous one. The displaced socket is closed so its read loop cannot keep
// acting for the player.
func (s *GameServer) register(sess *session) {
	s.mu.Lock()
	old := s.sessions[sess.playerID]
	s.sessions[sess.playerID] = sess
	s.mu.Unlock()
	if old != nil {
		old.close()
		old.conn.Close(websocket.StatusPolicyViolation, "session displaced")
	}
}

// unregister removes a session unless a newer one has displaced it. Returns
// whether this session was still the live one.
func (s *GameServer) unregister(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.playerID] != sess {
		return false
	}
	delete(s.sessions, sess.playerID)
	return true
}

// HandleWS upgrades the connection and runs its read loop until the client
// goes away.
func (s *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is enforced upstream
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()
	var sess *session
	defer func() {
		if sess == nil {
			return
		}
		sess.close()
		if s.unregister(sess) {
			s.Game.HandleDisconnect(sess.playerID)
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var action models.GameAction
		if err := json.Unmarshal(data, &action); err != nil {
			s.writeRaw(ctx, conn, rejectEvent(game.CodeInvalidAction, "malformed frame"))
			continue
		}

		if sess == nil {
			sess = s.handlePreJoin(ctx, conn, action)
			continue
		}
		if action.Type == models.ActionJoinGame {
			if !s.Game.HasPlayer(sess.playerID) {
				// The roster was reset out from under this session;
				// drop the stale binding and join fresh.
				s.unregister(sess)
				sess.close()
				sess = s.handlePreJoin(ctx, conn, action)
				continue
			}
			// Already bound; treat a repeat join as a snapshot request.
			s.Game.HandleReconnect(sess.playerID)
			continue
		}
		s.Game.HandlePlayerAction(sess.playerID, action)
	}
}

// handlePreJoin processes frames from a connection that has no player
// identity yet: joinGame (by name or by token) and the login-screen reset
// vote. Returns the bound session once a join succeeds.
func (s *GameServer) handlePreJoin(ctx context.Context, conn *websocket.Conn, action models.GameAction) *session {
	switch action.Type {
	case models.ActionJoinGame:
		if token, ok := action.PayloadString("token"); ok && token != "" {
			return s.joinWithToken(ctx, conn, token)
		}
		name, ok := action.PayloadString("playerName")
		if !ok || name == "" {
			s.writeRaw(ctx, conn, rejectEvent(game.CodeInvalidAction, "joinGame requires playerName"))
			return nil
		}
		return s.joinWithName(ctx, conn, name)

	case models.ActionVoteReset:
		name, ok := action.PayloadString("playerName")
		if !ok || name == "" {
			s.writeRaw(ctx, conn, rejectEvent(game.CodeInvalidAction, "voteReset requires playerName"))
			return nil
		}
		if err := s.Game.VoteResetFromJoinScreen(name); err != nil {
			s.writeRaw(ctx, conn, rejectErr(err))
		}
		return nil

	default:
		s.writeRaw(ctx, conn, rejectEvent(game.CodeInvalidAction, "join the game first"))
		return nil
	}
}

func (s *GameServer) joinWithName(ctx context.Context, conn *websocket.Conn, name string) *session {
	player, err := s.Game.Join(name)
	if err != nil {
		s.writeRaw(ctx, conn, rejectErr(err))
		return nil
	}
	return s.bind(conn, player.ID, player.Name)
}

// joinWithToken reclaims a seat via a signed session token. It displaces a
// still-bound connection for the same player, which a fresh name join would
// reject as an identity conflict.
func (s *GameServer) joinWithToken(ctx context.Context, conn *websocket.Conn, token string) *session {
	playerID, name, err := auth.ParseSessionToken(token)
	if err != nil {
		s.writeRaw(ctx, conn, rejectEvent(game.CodeIdentityConflict, "invalid session token"))
		return nil
	}
	if !s.Game.HasPlayer(playerID) {
		// The roster may have been reset since the token was minted.
		return s.joinWithName(ctx, conn, name)
	}
	return s.bind(conn, playerID, name)
}

// bind registers the session, starts its write pump, issues the reconnect
// token, and replays the full game state.
func (s *GameServer) bind(conn *websocket.Conn, playerID uuid.UUID, name string) *session {
	sess := &session{
		playerID:   playerID,
		playerName: name,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
	s.register(sess)
	go s.writePump(sess)

	if token, err := auth.CreateSessionToken(playerID, name); err == nil {
		s.broadcastTo(playerID, game.GameEvent{Type: eventSessionToken, Payload: map[string]interface{}{
			"token":    token,
			"playerId": playerID,
			"name":     name,
		}})
	} else {
		s.log.WithError(err).WithField("player", name).Error("session token signing failed")
	}

	s.Game.HandleReconnect(playerID)
	s.log.WithFields(logrus.Fields{"player": name, "playerId": playerID}).Info("session bound")
	return sess
}

// writePump owns all writes to one connection and runs until the session is
// closed or a write fails.
func (s *GameServer) writePump(sess *session) {
	for {
		select {
		case msg := <-sess.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := sess.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				sess.close()
				sess.conn.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-sess.done:
			return
		}
	}
}

// writeRaw sends one event on a connection that has no session yet.
func (s *GameServer) writeRaw(ctx context.Context, conn *websocket.Conn, ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, msg); err != nil {
		s.log.WithError(err).Debug("pre-join write failed")
	}
}

func rejectEvent(code game.RejectionCode, message string) game.GameEvent {
	return game.GameEvent{Type: game.EventActionRejected, Payload: &game.ActionError{Code: code, Message: message}}
}

func rejectErr(err error) game.GameEvent {
	if actionErr, ok := err.(*game.ActionError); ok {
		return game.GameEvent{Type: game.EventActionRejected, Payload: actionErr}
	}
	return rejectEvent(game.CodeInvalidAction, err.Error())
}
