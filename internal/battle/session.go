package battle

import (
	"sync"
	"time"

	"github.com/solvio-app/battle-server/internal/obslog"
	"github.com/solvio-app/battle-server/internal/userapi"
	"github.com/solvio-app/battle-server/pkg/battledto"
	"go.uber.org/zap"
)

// Sender pushes an event to one user's live connection. Delivery to a user
// with no connection is a silent no-op; the disconnect itself reaches the
// session through PlayerGone.
type Sender interface {
	Send(userID, event string, payload any)
}

// PlayerInfo is the identity snapshot a session is created with.
type PlayerInfo struct {
	UserID         string
	Username       string
	ProfilePicture string
}

type eventKind int

const (
	evSubmit eventKind = iota
	evGone
	evTimer
)

// timerTag pins a scheduled fire to the phase and round it was armed for.
// A fire whose tag no longer matches the live state is stale and ignored.
type timerTag struct {
	phase Status
	round int
	tick  int
}

type sessionEvent struct {
	kind   eventKind
	userID string
	answer string
	timeMs int64
	reply  chan error
	tag    timerTag
}

// Session owns one paired match: countdown, N timed rounds, settlement
// record production. All state mutations happen on the session goroutine;
// answers, disconnects and timer fires are serialized through one channel.
type Session struct {
	id        string
	questions []userapi.Question
	timing    Timing
	sender    Sender
	onEnd     func(*Session, *Settlement)

	events chan sessionEvent
	done   chan struct{}

	// Mutated only by the session goroutine; the mutex makes snapshots safe
	// for outside readers (manager, tests).
	mu           sync.RWMutex
	players      [2]*playerState
	status       Status
	round        int
	roundStarted time.Time
	deadline     time.Time
	createdAt    time.Time

	countdownLeft     int
	forfeitMsg        func(leaverName string) string
	pendingSettlement *Settlement
}

// NewSession builds a session in COUNTDOWN with exactly two players.
// Run must be called to start it.
func NewSession(id string, a, b PlayerInfo, qs []userapi.Question, timing Timing, sender Sender, forfeitMsg func(leaverName string) string, onEnd func(*Session, *Settlement)) *Session {
	s := &Session{
		id:        id,
		questions: qs,
		timing:    timing,
		sender:    sender,
		onEnd:     onEnd,
		events:    make(chan sessionEvent, 16),
		done:      make(chan struct{}),
		status:    StatusCountdown,
		createdAt: time.Now(),

		countdownLeft: CountdownTicks,
		forfeitMsg:    forfeitMsg,
	}
	s.players[0] = &playerState{userID: a.UserID, username: a.Username, profilePicture: a.ProfilePicture, connected: true}
	s.players[1] = &playerState{userID: b.UserID, username: b.Username, profilePicture: b.ProfilePicture, connected: true}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Round returns the current zero-based round index.
func (s *Session) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

func (s *Session) HasPlayer(userID string) bool {
	return s.players[0].userID == userID || s.players[1].userID == userID
}

// Scores snapshots cumulative scores by user id.
func (s *Session) Scores() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		s.players[0].userID: s.players[0].score,
		s.players[1].userID: s.players[1].score,
	}
}

// Done closes when the session has reached ENDED and the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run announces the match and starts the event loop.
func (s *Session) Run() {
	s.sendTo(0, battledto.EvtMatchFound, battledto.MatchFoundPayload{
		BattleID:       s.id,
		Opponent:       s.opponentInfo(0),
		TotalQuestions: len(s.questions),
	})
	s.sendTo(1, battledto.EvtMatchFound, battledto.MatchFoundPayload{
		BattleID:       s.id,
		Opponent:       s.opponentInfo(1),
		TotalQuestions: len(s.questions),
	})

	s.broadcast(battledto.EvtCountdown, battledto.CountdownPayload{Seconds: s.countdownLeft})
	s.schedule(s.timing.CountdownTick, timerTag{phase: StatusCountdown, tick: s.countdownLeft})

	go s.loop()
}

// Submit routes one answer through the session's serialization point.
func (s *Session) Submit(userID, answer string, timeMs int64) error {
	reply := make(chan error, 1)
	ev := sessionEvent{kind: evSubmit, userID: userID, answer: answer, timeMs: timeMs, reply: reply}
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// PlayerGone reports a player's connection loss. Forfeit is immediate; the
// in-flight round is not allowed to finish.
func (s *Session) PlayerGone(userID string) {
	select {
	case s.events <- sessionEvent{kind: evGone, userID: userID}:
	case <-s.done:
	}
}

func (s *Session) loop() {
	for {
		select {
		case ev := <-s.events:
			switch ev.kind {
			case evSubmit:
				ev.reply <- s.handleSubmit(ev.userID, ev.answer, ev.timeMs)
			case evGone:
				s.handleGone(ev.userID)
			case evTimer:
				s.handleTimer(ev.tag)
			}
			if s.status == StatusEnded {
				close(s.done)
				if s.onEnd != nil {
					s.onEnd(s, s.buildSettlement())
				}
				return
			}
		}
	}
}

// schedule arms a tagged timer that posts back into the event loop.
func (s *Session) schedule(d time.Duration, tag timerTag) {
	time.AfterFunc(d, func() {
		select {
		case s.events <- sessionEvent{kind: evTimer, tag: tag}:
		case <-s.done:
		}
	})
}

func (s *Session) handleTimer(tag timerTag) {
	switch tag.phase {
	case StatusCountdown:
		if s.status != StatusCountdown || tag.tick != s.countdownLeft {
			return // stale
		}
		s.countdownLeft--
		if s.countdownLeft > 0 {
			s.broadcast(battledto.EvtCountdown, battledto.CountdownPayload{Seconds: s.countdownLeft})
			s.schedule(s.timing.CountdownTick, timerTag{phase: StatusCountdown, tick: s.countdownLeft})
			return
		}
		s.beginRound(0)
	case StatusInRound:
		if s.status != StatusInRound || tag.round != s.round {
			return // deadline from an already-finished round
		}
		s.endRound(true)
	case StatusRoundResult:
		if s.status != StatusRoundResult || tag.round != s.round {
			return
		}
		if s.round+1 < len(s.questions) {
			s.beginRound(s.round + 1)
		} else {
			s.finish(nil)
		}
	}
}

func (s *Session) beginRound(idx int) {
	q := s.questions[idx]
	now := time.Now()

	s.mu.Lock()
	s.status = StatusInRound
	s.round = idx
	s.roundStarted = now
	s.deadline = now.Add(time.Duration(q.TimeLimitMs) * time.Millisecond)
	for _, p := range s.players {
		p.answer = nil
	}
	s.mu.Unlock()

	s.broadcast(battledto.EvtQuestion, battledto.QuestionPayload{
		QuestionNumber: idx + 1,
		TotalQuestions: len(s.questions),
		Question:       q.Question,
		Options:        q.Options,
		TimeLimit:      q.TimeLimitMs,
	})
	s.schedule(time.Duration(q.TimeLimitMs)*time.Millisecond, timerTag{phase: StatusInRound, round: idx})

	obslog.L().Debug("battle_round_start",
		zap.String("battle_id", s.id),
		zap.Int("round", idx),
		zap.Int64("time_limit_ms", q.TimeLimitMs),
	)
}

func (s *Session) handleSubmit(userID, answer string, timeMs int64) error {
	if s.status != StatusInRound {
		return ErrNotInRound
	}
	me, opp := s.playerByID(userID)
	if me == nil {
		return ErrNotAPlayer
	}
	if me.answer != nil {
		return ErrAlreadyAnswered
	}

	now := time.Now()
	s.mu.Lock()
	me.answer = &submittedAnswer{
		text:         answer,
		at:           now,
		elapsed:      now.Sub(s.roundStarted),
		clientTimeMs: timeMs,
	}
	s.mu.Unlock()

	s.sender.Send(opp.userID, battledto.EvtOpponentAnswered, nil)

	if opp.answer != nil {
		// Both in: close the round now; the pending deadline becomes stale.
		s.endRound(false)
	}
	return nil
}

func (s *Session) handleGone(userID string) {
	me, _ := s.playerByID(userID)
	if me == nil || s.status == StatusEnded {
		return
	}
	s.mu.Lock()
	me.connected = false
	s.mu.Unlock()
	obslog.L().Info("battle_forfeit", zap.String("battle_id", s.id), zap.String("user_id", userID))
	s.finish(&userID)
}

// endRound scores the current round and moves to ROUND_RESULT.
func (s *Session) endRound(timeout bool) {
	q := s.questions[s.round]

	s.mu.Lock()
	s.status = StatusRoundResult
	results := make([]battledto.PlayerRoundResult, 0, 2)
	for i, p := range s.players {
		opp := s.players[1-i]
		pts := roundPoints(q.CorrectAnswer, p.answer, opp.answer)
		p.score += pts
		res := battledto.PlayerRoundResult{
			UserID:       p.userID,
			Username:     p.username,
			PointsEarned: pts,
			NewScore:     p.score,
		}
		if p.answer != nil {
			res.Answer = p.answer.text
			res.IsCorrect = p.answer.text == q.CorrectAnswer
		}
		results = append(results, res)
	}
	roundIdx := s.round
	s.mu.Unlock()

	s.broadcast(battledto.EvtQuestionResult, battledto.QuestionResultPayload{
		QuestionNumber: roundIdx + 1,
		CorrectAnswer:  q.CorrectAnswer,
		Results:        results,
		Timeout:        timeout,
	})
	s.schedule(s.timing.ResultDisplay, timerTag{phase: StatusRoundResult, round: roundIdx})

	obslog.L().Debug("battle_round_result",
		zap.String("battle_id", s.id),
		zap.Int("round", roundIdx),
		zap.Bool("timeout", timeout),
	)
}

// roundPoints applies the scoring ladder: correct earns base points, and
// when both players are correct the one whose answer arrived strictly
// earlier earns the speed bonus on top. Wrong or missing answers earn
// nothing; there is no speed bonus without a correct opponent to beat.
func roundPoints(correct string, mine, theirs *submittedAnswer) int {
	if mine == nil || mine.text != correct {
		return 0
	}
	pts := BasePoints
	if theirs != nil && theirs.text == correct && mine.elapsed < theirs.elapsed {
		pts += SpeedBonusPoints
	}
	return pts
}

// finish moves the session to ENDED. A non-nil forfeiter marks the forfeit
// path: the remaining player wins regardless of score.
func (s *Session) finish(forfeiter *string) {
	s.mu.Lock()
	s.status = StatusEnded
	s.mu.Unlock()

	set := s.computeOutcome(forfeiter)

	if forfeiter != nil {
		survivor, leaver := s.opponentOf(*forfeiter)
		if survivor != nil {
			msg := ""
			if s.forfeitMsg != nil {
				msg = s.forfeitMsg(leaver.username)
			}
			s.sender.Send(survivor.userID, battledto.EvtOpponentDisconnected, battledto.OpponentDisconnectedPayload{
				BattleID: s.id,
				Message:  msg,
			})
		}
	}

	payload := battledto.BattleEndPayload{
		BattleID:  s.id,
		Winner:    set.Winner,
		IsDraw:    set.IsDraw,
		IsForfeit: set.IsForfeit,
	}
	for _, p := range set.Players {
		payload.Players = append(payload.Players, battledto.PlayerFinal{
			UserID:     p.UserID,
			Username:   p.Username,
			FinalScore: p.FinalScore,
			XPEarned:   p.XP,
			GemsEarned: p.Gems,
			IsWinner:   p.IsWinner,
		})
	}
	s.broadcast(battledto.EvtBattleEnd, payload)

	obslog.L().Info("battle_end",
		zap.String("battle_id", s.id),
		zap.Bool("draw", set.IsDraw),
		zap.Bool("forfeit", set.IsForfeit),
	)

	s.mu.Lock()
	s.pendingSettlement = set
	s.mu.Unlock()
}

// computeOutcome derives winner, draw flag and reward tiers.
func (s *Session) computeOutcome(forfeiter *string) *Settlement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := &Settlement{
		SessionID: s.id,
		Rounds:    len(s.questions),
		CreatedAt: s.createdAt,
		EndedAt:   time.Now(),
	}

	var winnerID string
	switch {
	case forfeiter != nil:
		set.IsForfeit = true
		if s.players[0].userID == *forfeiter {
			winnerID = s.players[1].userID
		} else {
			winnerID = s.players[0].userID
		}
	case s.players[0].score > s.players[1].score:
		winnerID = s.players[0].userID
	case s.players[1].score > s.players[0].score:
		winnerID = s.players[1].userID
	default:
		set.IsDraw = true
	}
	if winnerID != "" {
		set.Winner = &winnerID
	}

	for i, p := range s.players {
		isWinner := winnerID != "" && p.userID == winnerID
		xp, gems := rewardsFor(isWinner, set.IsDraw)
		set.Players[i] = SettledPlayer{
			UserID:     p.userID,
			Username:   p.username,
			FinalScore: p.score,
			XP:         xp,
			Gems:       gems,
			IsWinner:   isWinner,
		}
	}
	return set
}

func (s *Session) buildSettlement() *Settlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingSettlement
}

func (s *Session) playerByID(userID string) (me, opp *playerState) {
	if s.players[0].userID == userID {
		return s.players[0], s.players[1]
	}
	if s.players[1].userID == userID {
		return s.players[1], s.players[0]
	}
	return nil, nil
}

func (s *Session) opponentOf(userID string) (opp, me *playerState) {
	me, opp = s.playerByID(userID)
	return opp, me
}

func (s *Session) opponentInfo(i int) battledto.Opponent {
	o := s.players[1-i]
	return battledto.Opponent{UserID: o.userID, Username: o.username, ProfilePicture: o.profilePicture}
}

func (s *Session) sendTo(i int, event string, payload any) {
	s.sender.Send(s.players[i].userID, event, payload)
}

func (s *Session) broadcast(event string, payload any) {
	s.sendTo(0, event, payload)
	s.sendTo(1, event, payload)
}
