package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solvio-app/battle-server/internal/battle"
	appcfg "github.com/solvio-app/battle-server/internal/config"
	"github.com/solvio-app/battle-server/internal/gateway"
	"github.com/solvio-app/battle-server/internal/msgcat"
	"github.com/solvio-app/battle-server/internal/obslog"
	"github.com/solvio-app/battle-server/internal/questions"
	"github.com/solvio-app/battle-server/internal/queue"
	"github.com/solvio-app/battle-server/internal/registry"
	"github.com/solvio-app/battle-server/internal/settle"
	"github.com/solvio-app/battle-server/internal/store"
	"github.com/solvio-app/battle-server/internal/userapi"
	"github.com/solvio-app/battle-server/pkg/battledto"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	cat, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.UserAPIToken != "" {
			h["Authorization"] = "Bearer " + cfg.UserAPIToken
		}
		return h
	}
	userClient := userapi.NewClient(cfg.UserAPIBaseURL, userapi.WithHeaderProvider(headers))

	// Result history is optional; the battle core runs without postgres.
	var resultStore settle.ResultStore
	var repo *store.Repository
	if cfg.DatabaseURL != "" {
		repo, err = store.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("result repository error: %v", err)
		}
		resultStore = repo
	}

	settler := settle.New(rdb, userClient, resultStore)

	reg := registry.New()
	src := questions.NewAPISource(userClient, int64(cfg.RoundTimeLimitMs))

	forfeitMsg := func(leaverName string) string {
		return cat.MustRender("battle.opponent_disconnected", map[string]any{"Opponent": leaverName})
	}
	battles := battle.NewManager(reg, src, settler, forfeitMsg, battle.ManagerConfig{
		QuestionsPerMatch:    cfg.QuestionsPerMatch,
		MaxConcurrentBattles: cfg.MaxConcurrentBattles,
		Timing: battle.Timing{
			CountdownTick: time.Second,
			ResultDisplay: time.Duration(cfg.ResultDisplayMs) * time.Millisecond,
		},
	})

	q := queue.New(
		battles.InSession,
		func(userID string, position int) {
			if h, err := reg.Lookup(userID); err == nil {
				_ = h.Send(battledto.EvtQueueJoined, battledto.QueueJoinedPayload{Position: position})
			}
		},
		func(a, b queue.Entry) {
			_ = battles.StartBattle(a.UserID, b.UserID)
		},
	)

	// A gone connection leaves the queue and forfeits its session.
	reg.OnGone(func(userID string) { q.Dequeue(userID) })
	reg.OnGone(battles.HandleDisconnect)

	gw := gateway.NewServer(reg, q, battles, cat, cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle("/ws/battle", gw)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = srv.Shutdown(ctx)
	cancel()

	_ = rdb.Close()
	if repo != nil {
		_ = repo.Close()
	}
}
