package battle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solvio-app/battle-server/internal/obslog"
	"github.com/solvio-app/battle-server/internal/questions"
	"github.com/solvio-app/battle-server/internal/registry"
	"github.com/solvio-app/battle-server/pkg/battledto"
	"go.uber.org/zap"
)

var ErrTooManyBattles = errors.New("battle capacity reached")

// Settler applies a settlement record exactly once.
type Settler interface {
	Settle(ctx context.Context, set *Settlement) error
}

// ManagerConfig carries the knobs a Manager needs beyond its collaborators.
type ManagerConfig struct {
	QuestionsPerMatch    int
	MaxConcurrentBattles int
	Timing               Timing
}

// Manager owns the active-sessions maps and is the only entry point for
// creating sessions and routing player input to them.
type Manager struct {
	reg     *registry.Registry
	src     questions.Source
	settler Settler
	cfg     ManagerConfig

	// forfeitMsg renders the opponent-left message for the surviving player.
	forfeitMsg func(leaverName string) string

	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]*Session
}

func NewManager(reg *registry.Registry, src questions.Source, settler Settler, forfeitMsg func(string) string, cfg ManagerConfig) *Manager {
	if cfg.QuestionsPerMatch <= 0 {
		cfg.QuestionsPerMatch = DefaultQuestionsPerMatch
	}
	if cfg.Timing.CountdownTick <= 0 {
		cfg.Timing = DefaultTiming()
	}
	return &Manager{
		reg:        reg,
		src:        src,
		settler:    settler,
		cfg:        cfg,
		forfeitMsg: forfeitMsg,
		byID:       make(map[string]*Session),
		byUser:     make(map[string]*Session),
	}
}

// Send implements Sender by resolving the live connection at time of use.
// A missing or failed connection is not an error here; the disconnect
// reaches the session through the registry's cleanup path.
func (m *Manager) Send(userID, event string, payload any) {
	h, err := m.reg.Lookup(userID)
	if err != nil {
		return
	}
	if err := h.Send(event, payload); err != nil {
		obslog.L().Debug("push_failed", zap.String("user_id", userID), zap.String("event", event), zap.Error(err))
	}
}

// InSession reports whether the user is bound to an active session.
// Wired into the queue as its SessionChecker.
func (m *Manager) InSession(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byUser[userID]
	return ok
}

// Lookup finds an active session by battle id.
func (m *Manager) Lookup(battleID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[battleID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// StartBattle creates and runs a session for two freshly paired users.
// Called by the matchmaking queue after both entries have been removed.
// Both user ids are reserved in byUser before the question fetch so that
// neither player can re-enter matchmaking while the session is being
// created; a player belongs to at most one session at any point.
func (m *Manager) StartBattle(aID, bID string) error {
	m.mu.Lock()
	if m.cfg.MaxConcurrentBattles > 0 && len(m.byID) >= m.cfg.MaxConcurrentBattles {
		m.mu.Unlock()
		m.Send(aID, battledto.EvtError, battledto.ErrorPayload{Message: "server is at battle capacity, try again shortly"})
		m.Send(bID, battledto.EvtError, battledto.ErrorPayload{Message: "server is at battle capacity, try again shortly"})
		return ErrTooManyBattles
	}
	m.byUser[aID] = nil
	m.byUser[bID] = nil
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		if m.byUser[aID] == nil {
			delete(m.byUser, aID)
		}
		if m.byUser[bID] == nil {
			delete(m.byUser, bID)
		}
		m.mu.Unlock()
	}

	ha, errA := m.reg.Lookup(aID)
	hb, errB := m.reg.Lookup(bID)
	if errA != nil || errB != nil {
		release()
		// One side vanished between pairing and session creation. Tell the
		// remaining player so the client can restart the search.
		if errA == nil {
			m.Send(aID, battledto.EvtError, battledto.ErrorPayload{Message: "opponent is no longer available"})
		}
		if errB == nil {
			m.Send(bID, battledto.EvtError, battledto.ErrorPayload{Message: "opponent is no longer available"})
		}
		return registry.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	qs, err := m.src.Fetch(ctx, m.cfg.QuestionsPerMatch)
	cancel()
	if err != nil {
		release()
		obslog.L().Error("question_fetch_failed", zap.Error(err))
		m.Send(aID, battledto.EvtError, battledto.ErrorPayload{Message: "could not load questions, try again"})
		m.Send(bID, battledto.EvtError, battledto.ErrorPayload{Message: "could not load questions, try again"})
		return err
	}

	id := "battle-" + uuid.NewString()
	s := NewSession(id,
		PlayerInfo{UserID: ha.UserID(), Username: ha.Username(), ProfilePicture: ha.ProfilePicture()},
		PlayerInfo{UserID: hb.UserID(), Username: hb.Username(), ProfilePicture: hb.ProfilePicture()},
		qs, m.cfg.Timing, m, m.forfeitMsg, m.sessionEnded,
	)

	m.mu.Lock()
	m.byID[id] = s
	m.byUser[aID] = s
	m.byUser[bID] = s
	m.mu.Unlock()

	obslog.L().Info("battle_create",
		zap.String("battle_id", id),
		zap.String("player_a", aID),
		zap.String("player_b", bID),
		zap.Int("questions", len(qs)),
	)
	s.Run()
	return nil
}

// SubmitAnswer routes one answer to the owning session.
func (m *Manager) SubmitAnswer(userID, battleID, answer string, timeMs int64) error {
	s, err := m.Lookup(battleID)
	if err != nil {
		return err
	}
	if !s.HasPlayer(userID) {
		return ErrNotAPlayer
	}
	return s.Submit(userID, answer, timeMs)
}

// HandleDisconnect forfeits the user's active session, if any. Wired into
// the registry's cleanup chain.
func (m *Manager) HandleDisconnect(userID string) {
	m.mu.RLock()
	s := m.byUser[userID]
	m.mu.RUnlock()
	if s == nil {
		return
	}
	s.PlayerGone(userID)
}

// ActiveBattles returns the number of live sessions.
func (m *Manager) ActiveBattles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// sessionEnded tears the session down and hands the settlement record to
// the settler. Settlement failures are reported, never rolled back into
// the state machine: the session is already ENDED.
func (m *Manager) sessionEnded(s *Session, set *Settlement) {
	m.mu.Lock()
	delete(m.byID, s.ID())
	for _, p := range set.Players {
		if m.byUser[p.UserID] == s {
			delete(m.byUser, p.UserID)
		}
	}
	m.mu.Unlock()

	if m.settler == nil || set == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.settler.Settle(ctx, set); err != nil {
			obslog.L().Error("settlement_failed", zap.String("battle_id", set.SessionID), zap.Error(err))
		}
	}()
}
