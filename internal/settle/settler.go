package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solvio-app/battle-server/internal/battle"
	"github.com/solvio-app/battle-server/internal/obslog"
	"github.com/solvio-app/battle-server/internal/userapi"
	"go.uber.org/zap"
)

var ErrAlreadySettled = errors.New("battle already settled")

const (
	settledKeyPrefix = "battle:settled:"
	leaderboardKey   = "battle:leaderboard"
	settledTTL       = 24 * time.Hour
)

// Rewarder applies XP/gem deltas to the external user record.
type Rewarder interface {
	ApplyRewards(ctx context.Context, userID string, delta userapi.RewardDelta) error
}

// ResultStore persists a settled battle for history. Best effort.
type ResultStore interface {
	SaveResult(ctx context.Context, set *battle.Settlement) error
}

// Settler credits both players once per battle. The redis guard makes a
// second Settle call for the same session fail instead of double-crediting.
type Settler struct {
	rdb      *redis.Client
	rewarder Rewarder
	store    ResultStore // nil disables persistence
}

func New(rdb *redis.Client, rewarder Rewarder, store ResultStore) *Settler {
	return &Settler{rdb: rdb, rewarder: rewarder, store: store}
}

// Settle applies the settlement record. Reward application failures are
// returned to the caller but do not release the idempotency guard; the
// session is already torn down and retry policy lives outside this package.
func (s *Settler) Settle(ctx context.Context, set *battle.Settlement) error {
	if set == nil {
		return errors.New("nil settlement")
	}

	ok, err := s.rdb.SetNX(ctx, settledKeyPrefix+set.SessionID, time.Now().Format(time.RFC3339), settledTTL).Result()
	if err != nil {
		return fmt.Errorf("settlement guard: %w", err)
	}
	if !ok {
		return ErrAlreadySettled
	}

	var firstErr error
	for _, p := range set.Players {
		delta := userapi.RewardDelta{XP: p.XP, Gems: p.Gems, Reason: rewardReason(p, set)}
		if err := s.rewarder.ApplyRewards(ctx, p.UserID, delta); err != nil {
			obslog.L().Error("reward_apply_failed",
				zap.String("battle_id", set.SessionID),
				zap.String("user_id", p.UserID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// Ranking weight is the XP earned, so wins outrank draws outrank losses.
		if err := s.rdb.ZIncrBy(ctx, leaderboardKey, float64(p.XP), p.UserID).Err(); err != nil {
			obslog.L().Warn("leaderboard_update_failed", zap.String("user_id", p.UserID), zap.Error(err))
		}
	}

	if s.store != nil {
		if err := s.store.SaveResult(ctx, set); err != nil {
			obslog.L().Error("result_persist_failed", zap.String("battle_id", set.SessionID), zap.Error(err))
		}
	}

	obslog.L().Info("battle_settled",
		zap.String("battle_id", set.SessionID),
		zap.Bool("draw", set.IsDraw),
		zap.Bool("forfeit", set.IsForfeit),
	)
	return firstErr
}

// TopPlayers returns the leaderboard head, best first.
func (s *Settler) TopPlayers(ctx context.Context, n int64) ([]redis.Z, error) {
	if n <= 0 {
		n = 10
	}
	return s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
}

func rewardReason(p battle.SettledPlayer, set *battle.Settlement) string {
	switch {
	case set.IsDraw:
		return "battle_draw"
	case p.IsWinner && set.IsForfeit:
		return "battle_win_forfeit"
	case p.IsWinner:
		return "battle_win"
	default:
		return "battle_loss"
	}
}
