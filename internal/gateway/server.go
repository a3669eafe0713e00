package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/solvio-app/battle-server/internal/battle"
	"github.com/solvio-app/battle-server/internal/msgcat"
	"github.com/solvio-app/battle-server/internal/obslog"
	"github.com/solvio-app/battle-server/internal/queue"
	"github.com/solvio-app/battle-server/internal/registry"
	"github.com/solvio-app/battle-server/pkg/battledto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Identity headers set by the authenticating reverse proxy. Auth protocol
// internals are out of scope here; a verified identity is handed to us.
const (
	headerUserID         = "X-User-Id"
	headerUsername       = "X-Username"
	headerProfilePicture = "X-Profile-Picture"
)

// Server terminates realtime connections and dispatches client events to
// the matchmaking queue and the battle manager.
type Server struct {
	reg     *registry.Registry
	queue   *queue.Queue
	battles *battle.Manager
	cat     *msgcat.Catalog

	originPatterns []string
}

func NewServer(reg *registry.Registry, q *queue.Queue, battles *battle.Manager, cat *msgcat.Catalog, originPatterns []string) *Server {
	return &Server{reg: reg, queue: q, battles: battles, cat: cat, originPatterns: originPatterns}
}

// ServeHTTP upgrades the request and runs the connection until the
// transport closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	username := strings.TrimSpace(r.Header.Get(headerUsername))
	if username == "" {
		username = userID
	}
	profilePicture := strings.TrimSpace(r.Header.Get(headerProfilePicture))

	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	if len(s.originPatterns) > 0 {
		opts.OriginPatterns = s.originPatterns
	} else {
		opts.InsecureSkipVerify = true
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := newConn(ws, userID, username, profilePicture)
	s.reg.Register(conn)
	obslog.L().Info("ws_connected", zap.String("user_id", userID))

	s.readLoop(conn)

	// Unregister triggers queue removal and session forfeit through the
	// registry's cleanup chain.
	s.reg.Unregister(userID, conn)
	conn.Close("bye")
	obslog.L().Info("ws_disconnected", zap.String("user_id", userID))
}

func (s *Server) readLoop(c *Conn) {
	for {
		var env battledto.Envelope
		if err := wsjson.Read(c.ctx, c.ws, &env); err != nil {
			return
		}
		s.dispatch(c, &env)
	}
}

func (s *Server) dispatch(c *Conn, env *battledto.Envelope) {
	switch env.Event {
	case battledto.EvtJoinQueue:
		if err := s.queue.Enqueue(c.UserID()); err != nil {
			c.sendError(s.errorText(err))
		}
		// queueJoined is pushed by the queue's joined callback so it always
		// precedes matchFound.

	case battledto.EvtLeaveQueue:
		s.queue.Dequeue(c.UserID())
		_ = c.Send(battledto.EvtQueueLeft, nil)

	case battledto.EvtSubmitAnswer:
		var p battledto.SubmitAnswerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || strings.TrimSpace(p.BattleID) == "" {
			c.sendError(s.cat.MustRender("error.internal", nil))
			return
		}
		if err := s.battles.SubmitAnswer(c.UserID(), p.BattleID, p.Answer, p.TimeMs); err != nil {
			c.sendError(s.errorText(err))
		}

	default:
		obslog.L().Debug("ws_unknown_event", zap.String("user_id", c.UserID()), zap.String("event", env.Event))
		c.sendError(s.cat.MustRender("error.internal", nil))
	}
}

// errorText maps core sentinels to client-facing catalog strings. Unknown
// errors degrade to the generic message; details stay in the logs.
func (s *Server) errorText(err error) string {
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		return s.cat.MustRender("error.already_queued", nil)
	case errors.Is(err, queue.ErrAlreadyInSession):
		return s.cat.MustRender("error.already_in_session", nil)
	case errors.Is(err, battle.ErrAlreadyAnswered):
		return s.cat.MustRender("error.already_answered", nil)
	case errors.Is(err, battle.ErrSessionNotFound), errors.Is(err, battle.ErrNotAPlayer), errors.Is(err, battle.ErrSessionClosed):
		return s.cat.MustRender("error.session_not_found", nil)
	case errors.Is(err, battle.ErrNotInRound):
		return s.cat.MustRender("error.not_in_round", nil)
	default:
		return s.cat.MustRender("error.internal", nil)
	}
}
