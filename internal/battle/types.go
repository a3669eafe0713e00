package battle

import (
	"errors"
	"time"
)

// Status is the battle session lifecycle state. Transitions are monotonic:
// COUNTDOWN -> IN_ROUND <-> ROUND_RESULT -> ENDED, with a direct jump to
// ENDED on forfeit.
type Status string

const (
	StatusCountdown   Status = "COUNTDOWN"
	StatusInRound     Status = "IN_ROUND"
	StatusRoundResult Status = "ROUND_RESULT"
	StatusEnded       Status = "ENDED"
)

// Scoring and reward constants. Values are fixed tiers; ordering is the
// contract (win > draw > loss, correct > correct-and-faster bonus > wrong).
const (
	BasePoints       = 10
	SpeedBonusPoints = 5

	WinXP    = 50
	WinGems  = 25
	DrawXP   = 25
	DrawGems = 10
	LossXP   = 10
	LossGems = 5
)

const (
	DefaultQuestionsPerMatch = 5
	CountdownTicks           = 3
)

var (
	ErrAlreadyAnswered = errors.New("answer already submitted for this round")
	ErrSessionNotFound = errors.New("battle session not found")
	ErrNotInRound      = errors.New("battle is not accepting answers")
	ErrNotAPlayer      = errors.New("user is not a player in this battle")
	ErrSessionClosed   = errors.New("battle session already ended")
)

// Timing controls the pace of a session. Production uses the defaults;
// tests shrink everything to milliseconds.
type Timing struct {
	CountdownTick time.Duration // interval between countdown broadcasts
	ResultDisplay time.Duration // how long ROUND_RESULT is shown
}

func DefaultTiming() Timing {
	return Timing{
		CountdownTick: time.Second,
		ResultDisplay: 3 * time.Second,
	}
}

// submittedAnswer records a player's single answer for the current round.
// Arrival time is server-observed; the client-reported timeMs is kept for
// diagnostics only and never used for scoring.
type submittedAnswer struct {
	text         string
	at           time.Time
	elapsed      time.Duration
	clientTimeMs int64
}

// playerState is one side of a session. Owned exclusively by the session
// goroutine after construction.
type playerState struct {
	userID         string
	username       string
	profilePicture string

	score     int
	answer    *submittedAnswer // nil until this round's submission
	connected bool
}

// SettledPlayer is the per-player slice of a settlement record.
type SettledPlayer struct {
	UserID     string
	Username   string
	FinalScore int
	XP         int
	Gems       int
	IsWinner   bool
}

// Settlement is produced exactly once when a session reaches ENDED and is
// consumed exactly once by reward settlement.
type Settlement struct {
	SessionID string
	Winner    *string // userId, nil on draw
	IsDraw    bool
	IsForfeit bool
	Players   [2]SettledPlayer
	Rounds    int
	CreatedAt time.Time
	EndedAt   time.Time
}

func rewardsFor(isWinner, isDraw bool) (xp, gems int) {
	switch {
	case isDraw:
		return DrawXP, DrawGems
	case isWinner:
		return WinXP, WinGems
	default:
		return LossXP, LossGems
	}
}
