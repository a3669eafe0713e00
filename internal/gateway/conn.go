package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/solvio-app/battle-server/internal/registry"
	"github.com/solvio-app/battle-server/pkg/battledto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrTransportClosed = errors.New("transport closed")

const writeTimeout = 5 * time.Second

// Conn is one live client connection. It implements registry.Handle; the
// registry owns the user -> Conn mapping, everything else resolves through
// it at time of use.
type Conn struct {
	ws *websocket.Conn

	userID         string
	username       string
	profilePicture string

	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, userID, username, profilePicture string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:             ws,
		userID:         userID,
		username:       username,
		profilePicture: profilePicture,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (c *Conn) UserID() string         { return c.userID }
func (c *Conn) Username() string       { return c.username }
func (c *Conn) ProfilePicture() string { return c.profilePicture }

// Send pushes one event frame. Writers from independent goroutines (read
// loop replies, session broadcasts) are serialized here.
func (c *Conn) Send(event string, payload any) error {
	select {
	case <-c.ctx.Done():
		return ErrTransportClosed
	default:
	}

	env := outEnvelope{Event: event, Payload: payload}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		return ErrTransportClosed
	}
	return nil
}

// Close tears the transport down. Safe to call more than once.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, reason)
	})
}

// outEnvelope is the write-side frame; payload stays typed until encode.
type outEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

var _ registry.Handle = (*Conn)(nil)

// sendError is a small helper for pushing error events.
func (c *Conn) sendError(msg string) {
	_ = c.Send(battledto.EvtError, battledto.ErrorPayload{Message: msg})
}
