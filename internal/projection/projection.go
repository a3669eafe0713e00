// Package projection mirrors the server's battle state machine on the
// client side. It exists so the UI can gate inputs with the exact same
// transition contract the server enforces; it is advisory only and is
// never consulted for scoring.
package projection

import (
	"errors"

	"github.com/solvio-app/battle-server/pkg/battledto"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseQueued      Phase = "queued"
	PhaseCountdown   Phase = "countdown"
	PhaseInRound     Phase = "in_round"
	PhaseRoundResult Phase = "round_result"
	PhaseEnded       Phase = "ended"
)

var ErrSubmitNotAllowed = errors.New("submit not allowed in current state")

// State is the projected battle view. Values only; Reduce never mutates
// its input.
type State struct {
	Phase Phase

	QueuePosition  int
	BattleID       string
	Opponent       battledto.Opponent
	TotalQuestions int

	CountdownSeconds int

	QuestionNumber   int
	Question         string
	Options          []string
	TimeLimitMs      int64
	Answered         bool
	OpponentAnswered bool

	LastResult *battledto.QuestionResultPayload
	End        *battledto.BattleEndPayload

	LastError string
}

func Initial() State {
	return State{Phase: PhaseIdle}
}

// CanSubmit mirrors the server's single-submission invariant: input is
// accepted only while a round is open and this player has not answered.
func (s State) CanSubmit() bool {
	return s.Phase == PhaseInRound && !s.Answered
}

// ApplySubmit marks the local answer as sent. The server remains the sole
// authority; this only drives input disabling.
func (s State) ApplySubmit() (State, error) {
	if !s.CanSubmit() {
		return s, ErrSubmitNotAllowed
	}
	next := s
	next.Answered = true
	return next, nil
}

// Reduce produces the next projected state for a server event. Events that
// are invalid for the current phase leave the state unchanged, matching the
// server's monotonic transitions.
func Reduce(s State, event string, payload any) State {
	next := s
	switch event {
	case battledto.EvtQueueJoined:
		// A finished battle may be followed directly by a new search.
		if s.Phase != PhaseIdle && s.Phase != PhaseEnded {
			return s
		}
		next = Initial()
		next.Phase = PhaseQueued
		if p, ok := payload.(battledto.QueueJoinedPayload); ok {
			next.QueuePosition = p.Position
		}

	case battledto.EvtQueueLeft:
		if s.Phase != PhaseQueued {
			return s
		}
		next = Initial()

	case battledto.EvtMatchFound:
		if s.Phase != PhaseQueued {
			return s
		}
		p, ok := payload.(battledto.MatchFoundPayload)
		if !ok {
			return s
		}
		next = Initial()
		next.Phase = PhaseCountdown
		next.BattleID = p.BattleID
		next.Opponent = p.Opponent
		next.TotalQuestions = p.TotalQuestions

	case battledto.EvtCountdown:
		if s.Phase != PhaseCountdown {
			return s
		}
		if p, ok := payload.(battledto.CountdownPayload); ok {
			next.CountdownSeconds = p.Seconds
		}

	case battledto.EvtQuestion:
		if s.Phase != PhaseCountdown && s.Phase != PhaseRoundResult {
			return s
		}
		p, ok := payload.(battledto.QuestionPayload)
		if !ok {
			return s
		}
		// Rounds only move forward.
		if p.QuestionNumber <= s.QuestionNumber {
			return s
		}
		next.Phase = PhaseInRound
		next.QuestionNumber = p.QuestionNumber
		next.Question = p.Question
		next.Options = p.Options
		next.TimeLimitMs = p.TimeLimit
		next.Answered = false
		next.OpponentAnswered = false
		next.LastResult = nil

	case battledto.EvtOpponentAnswered:
		if s.Phase != PhaseInRound {
			return s
		}
		next.OpponentAnswered = true

	case battledto.EvtQuestionResult:
		if s.Phase != PhaseInRound {
			return s
		}
		p, ok := payload.(battledto.QuestionResultPayload)
		if !ok || p.QuestionNumber != s.QuestionNumber {
			return s
		}
		next.Phase = PhaseRoundResult
		next.LastResult = &p

	case battledto.EvtBattleEnd:
		if s.Phase == PhaseIdle || s.Phase == PhaseQueued || s.Phase == PhaseEnded {
			return s
		}
		p, ok := payload.(battledto.BattleEndPayload)
		if !ok || p.BattleID != s.BattleID {
			return s
		}
		next.Phase = PhaseEnded
		next.End = &p

	case battledto.EvtOpponentDisconnected:
		// Informational; the authoritative transition arrives as battleEnd.
		if s.Phase == PhaseIdle || s.Phase == PhaseQueued {
			return s
		}

	case battledto.EvtError:
		if p, ok := payload.(battledto.ErrorPayload); ok {
			next.LastError = p.Message
		}
	}
	return next
}
