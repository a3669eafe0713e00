package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/solvio-app/battle-server/internal/battle"
)

// Repository persists settled battles to postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a settled battle into the database.
func (r *Repository) SaveResult(ctx context.Context, set *battle.Settlement) error {
	if r == nil || r.db == nil || set == nil {
		return nil
	}

	var winner sql.NullString
	if set.Winner != nil {
		winner = sql.NullString{String: *set.Winner, Valid: true}
	}

	duration := set.EndedAt.Sub(set.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	a, b := set.Players[0], set.Players[1]

	q := `INSERT INTO battle_results (
        battle_id,
        player_a_id, player_a_name, player_a_score, player_a_xp, player_a_gems,
        player_b_id, player_b_name, player_b_score, player_b_xp, player_b_gems,
        winner_id, is_draw, is_forfeit, rounds,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
      ) ON CONFLICT (battle_id) DO UPDATE SET
        player_a_id=EXCLUDED.player_a_id,
        player_a_name=EXCLUDED.player_a_name,
        player_a_score=EXCLUDED.player_a_score,
        player_a_xp=EXCLUDED.player_a_xp,
        player_a_gems=EXCLUDED.player_a_gems,
        player_b_id=EXCLUDED.player_b_id,
        player_b_name=EXCLUDED.player_b_name,
        player_b_score=EXCLUDED.player_b_score,
        player_b_xp=EXCLUDED.player_b_xp,
        player_b_gems=EXCLUDED.player_b_gems,
        winner_id=EXCLUDED.winner_id,
        is_draw=EXCLUDED.is_draw,
        is_forfeit=EXCLUDED.is_forfeit,
        rounds=EXCLUDED.rounds,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		set.SessionID,
		a.UserID, a.Username, a.FinalScore, a.XP, a.Gems,
		b.UserID, b.Username, b.FinalScore, b.XP, b.Gems,
		winner, set.IsDraw, set.IsForfeit, set.Rounds,
		set.CreatedAt, set.EndedAt, duration,
	)
	return err
}
