package userapi

// User is the profile slice the battle core needs; the full record lives
// in the platform user service.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	XP             int    `json:"xp"`
	Gems           int    `json:"gems"`
}

// RewardDelta is applied to a user's balances after a battle settles.
type RewardDelta struct {
	XP     int    `json:"xp"`
	Gems   int    `json:"gems"`
	Reason string `json:"reason,omitempty"` // e.g. "battle_win"
}

// Question is one item from the question bank. CorrectAnswer never leaves
// the server before the round is scored.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	TimeLimitMs   int64    `json:"timeLimitMs"`
}

type questionBankResponse struct {
	Questions []Question `json:"questions"`
}
