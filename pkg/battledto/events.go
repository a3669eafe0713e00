package battledto

import "encoding/json"

// Client -> server event names.
const (
	EvtJoinQueue    = "joinQueue"
	EvtLeaveQueue   = "leaveQueue"
	EvtSubmitAnswer = "submitAnswer"
)

// Server -> client event names.
const (
	EvtQueueJoined          = "queueJoined"
	EvtQueueLeft            = "queueLeft"
	EvtMatchFound           = "matchFound"
	EvtCountdown            = "countdown"
	EvtQuestion             = "question"
	EvtOpponentAnswered     = "opponentAnswered"
	EvtQuestionResult       = "questionResult"
	EvtBattleEnd            = "battleEnd"
	EvtOpponentDisconnected = "opponentDisconnected"
	EvtError                = "error"
)

// Envelope wraps every frame on the realtime connection.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubmitAnswerPayload struct {
	BattleID string `json:"battleId"`
	Answer   string `json:"answer"`
	TimeMs   int64  `json:"timeMs"`
}

type QueueJoinedPayload struct {
	Position int `json:"position"`
}

// Opponent is the public profile slice shown on the versus screen.
type Opponent struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type MatchFoundPayload struct {
	BattleID       string   `json:"battleId"`
	Opponent       Opponent `json:"opponent"`
	TotalQuestions int      `json:"totalQuestions"`
}

type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

type QuestionPayload struct {
	QuestionNumber int      `json:"questionNumber"`
	TotalQuestions int      `json:"totalQuestions"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	TimeLimit      int64    `json:"timeLimit"` // milliseconds
}

type PlayerRoundResult struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Answer       string `json:"answer"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	NewScore     int    `json:"newScore"`
}

type QuestionResultPayload struct {
	QuestionNumber int                 `json:"questionNumber"`
	CorrectAnswer  string              `json:"correctAnswer"`
	Results        []PlayerRoundResult `json:"results"`
	Timeout        bool                `json:"timeout"`
}

type PlayerFinal struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	FinalScore int    `json:"finalScore"`
	XPEarned   int    `json:"xpEarned"`
	GemsEarned int    `json:"gemsEarned"`
	IsWinner   bool   `json:"isWinner"`
}

type BattleEndPayload struct {
	BattleID  string        `json:"battleId"`
	Winner    *string       `json:"winner"` // userId, nil on draw
	IsDraw    bool          `json:"isDraw"`
	IsForfeit bool          `json:"isForfeit"`
	Players   []PlayerFinal `json:"players"`
}

type OpponentDisconnectedPayload struct {
	BattleID string `json:"battleId"`
	Message  string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
