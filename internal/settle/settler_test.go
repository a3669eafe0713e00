package settle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/solvio-app/battle-server/internal/battle"
	"github.com/solvio-app/battle-server/internal/userapi"
)

type recordingRewarder struct {
	calls []appliedReward
	fail  map[string]error
}

type appliedReward struct {
	userID string
	delta  userapi.RewardDelta
}

func (r *recordingRewarder) ApplyRewards(_ context.Context, userID string, delta userapi.RewardDelta) error {
	r.calls = append(r.calls, appliedReward{userID: userID, delta: delta})
	if err, ok := r.fail[userID]; ok {
		return err
	}
	return nil
}

func newTestSettler(t *testing.T, rewarder Rewarder) (*Settler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, rewarder, nil), mr
}

func sampleSettlement() *battle.Settlement {
	winner := "alice"
	now := time.Now()
	return &battle.Settlement{
		SessionID: "battle-test-1",
		Winner:    &winner,
		Players: [2]battle.SettledPlayer{
			{UserID: "alice", Username: "Alice", FinalScore: 45, XP: battle.WinXP, Gems: battle.WinGems, IsWinner: true},
			{UserID: "bob", Username: "Bob", FinalScore: 20, XP: battle.LossXP, Gems: battle.LossGems},
		},
		Rounds:    5,
		CreatedAt: now.Add(-time.Minute),
		EndedAt:   now,
	}
}

func TestSettleCreditsBothPlayersOnce(t *testing.T) {
	rew := &recordingRewarder{}
	s, _ := newTestSettler(t, rew)

	if err := s.Settle(context.Background(), sampleSettlement()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(rew.calls) != 2 {
		t.Fatalf("expected 2 reward calls, got %d", len(rew.calls))
	}
	if rew.calls[0].userID != "alice" || rew.calls[0].delta.XP != battle.WinXP {
		t.Fatalf("winner reward wrong: %+v", rew.calls[0])
	}
	if rew.calls[0].delta.Reason != "battle_win" {
		t.Fatalf("winner reason = %q", rew.calls[0].delta.Reason)
	}
	if rew.calls[1].userID != "bob" || rew.calls[1].delta.Gems != battle.LossGems {
		t.Fatalf("loser reward wrong: %+v", rew.calls[1])
	}
}

func TestSettleTwiceReturnsAlreadySettled(t *testing.T) {
	rew := &recordingRewarder{}
	s, _ := newTestSettler(t, rew)
	set := sampleSettlement()

	if err := s.Settle(context.Background(), set); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	err := s.Settle(context.Background(), set)
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second settle: got %v, want ErrAlreadySettled", err)
	}
	if len(rew.calls) != 2 {
		t.Fatalf("rewards applied %d times, double-credit suspected", len(rew.calls))
	}
}

func TestSettleUpdatesLeaderboardByXP(t *testing.T) {
	rew := &recordingRewarder{}
	s, _ := newTestSettler(t, rew)

	if err := s.Settle(context.Background(), sampleSettlement()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	top, err := s.TopPlayers(context.Background(), 5)
	if err != nil {
		t.Fatalf("top players: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("leaderboard entries = %d, want 2", len(top))
	}
	if top[0].Member != "alice" || top[0].Score != float64(battle.WinXP) {
		t.Fatalf("leaderboard head = %+v", top[0])
	}
	if top[1].Member != "bob" || top[1].Score != float64(battle.LossXP) {
		t.Fatalf("leaderboard tail = %+v", top[1])
	}
}

func TestSettleRewardFailureKeepsGuard(t *testing.T) {
	boom := errors.New("user service down")
	rew := &recordingRewarder{fail: map[string]error{"alice": boom}}
	s, _ := newTestSettler(t, rew)
	set := sampleSettlement()

	if err := s.Settle(context.Background(), set); !errors.Is(err, boom) {
		t.Fatalf("settle: got %v, want rewarder error", err)
	}
	// The failed battle stays marked settled; retries happen upstream, not
	// by re-running the whole settlement.
	if err := s.Settle(context.Background(), set); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("retry: got %v, want ErrAlreadySettled", err)
	}
	// Bob's reward still goes through after Alice's failure.
	if len(rew.calls) != 2 {
		t.Fatalf("reward calls = %d, want 2", len(rew.calls))
	}
}

func TestSettleForfeitReason(t *testing.T) {
	rew := &recordingRewarder{}
	s, _ := newTestSettler(t, rew)
	set := sampleSettlement()
	set.IsForfeit = true

	if err := s.Settle(context.Background(), set); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if rew.calls[0].delta.Reason != "battle_win_forfeit" {
		t.Fatalf("winner reason = %q", rew.calls[0].delta.Reason)
	}
	if rew.calls[1].delta.Reason != "battle_loss" {
		t.Fatalf("loser reason = %q", rew.calls[1].delta.Reason)
	}
}
