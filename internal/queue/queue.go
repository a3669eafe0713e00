package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/solvio-app/battle-server/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrAlreadyQueued    = errors.New("user is already in the matchmaking queue")
	ErrAlreadyInSession = errors.New("user is already in an active battle")
)

// Entry is one waiting user. The queue holds user ids only; connection
// lifetime belongs to the registry.
type Entry struct {
	UserID     string
	EnqueuedAt time.Time
}

// PairFunc receives the two oldest waiting users. Both entries are removed
// from the queue before it is called.
type PairFunc func(a, b Entry)

// SessionChecker reports whether a user is bound to an active battle.
type SessionChecker func(userID string) bool

// JoinedFunc is notified after a user's entry is appended, before any
// pairing it triggers, so "you are queued" reaches the client ahead of
// "match found". Position is 1-based.
type JoinedFunc func(userID string, position int)

// Queue is a strict-FIFO matchmaking pool. Pairing runs synchronously after
// every successful Enqueue; Dequeue is the only other way entries leave.
type Queue struct {
	mu      sync.Mutex
	entries []Entry

	inSession SessionChecker
	onJoined  JoinedFunc
	pair      PairFunc
}

func New(inSession SessionChecker, onJoined JoinedFunc, pair PairFunc) *Queue {
	return &Queue{inSession: inSession, onJoined: onJoined, pair: pair}
}

// Enqueue appends the user and attempts pairing. Pairing removes both
// entries atomically before the pair callback starts, so neither user can
// be matched twice.
func (q *Queue) Enqueue(userID string) error {
	if q.inSession != nil && q.inSession(userID) {
		return ErrAlreadyInSession
	}

	q.mu.Lock()
	for _, e := range q.entries {
		if e.UserID == userID {
			q.mu.Unlock()
			return ErrAlreadyQueued
		}
	}
	q.entries = append(q.entries, Entry{UserID: userID, EnqueuedAt: time.Now()})
	pos := len(q.entries)

	var a, b Entry
	paired := false
	if len(q.entries) >= 2 {
		a, b = q.entries[0], q.entries[1]
		q.entries = q.entries[2:]
		paired = true
	}
	q.mu.Unlock()

	obslog.L().Info("queue_enqueue", zap.String("user_id", userID), zap.Int("position", pos))
	if q.onJoined != nil {
		q.onJoined(userID, pos)
	}

	if paired && q.pair != nil {
		obslog.L().Info("queue_pair", zap.String("user_a", a.UserID), zap.String("user_b", b.UserID))
		q.pair(a, b)
	}
	return nil
}

// Dequeue removes the user's entry if present. Absence is not an error, so
// cancel requests and disconnect cleanup stay idempotent.
func (q *Queue) Dequeue(userID string) {
	q.mu.Lock()
	for i, e := range q.entries {
		if e.UserID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.mu.Unlock()
			obslog.L().Info("queue_dequeue", zap.String("user_id", userID))
			return
		}
	}
	q.mu.Unlock()
}

// Waiting reports whether the user has a pending entry.
func (q *Queue) Waiting(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// Len returns the current queue size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
