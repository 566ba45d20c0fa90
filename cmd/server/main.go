package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/auth"
	"github.com/Rikiyaaa/auction-server/internal/cache"
	"github.com/Rikiyaaa/auction-server/internal/config"
	"github.com/Rikiyaaa/auction-server/internal/database"
	"github.com/Rikiyaaa/auction-server/internal/game"
	"github.com/Rikiyaaa/auction-server/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Load(log)
	auth.Init(cfg.JWTSecret)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.RedisAddr != "" {
		if err := cache.InitRedis(ctx, cfg.RedisAddr); err != nil {
			log.WithError(err).Warn("redis unavailable; action history disabled")
		} else {
			log.WithField("addr", cfg.RedisAddr).Info("redis connected")
		}
	}
	if cfg.DatabaseURL != "" {
		if err := database.Connect(ctx, cfg.DatabaseURL); err != nil {
			log.WithError(err).Warn("postgres unavailable; results persistence disabled")
		} else {
			log.Info("postgres connected")
		}
	}

	g := game.NewAuctionGame(cfg.Rules, nil, log)
	g.RecordActionFn = func(rec game.ActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			log.WithError(err).Warn("action history publish failed")
		}
	}
	g.PersistResultsFn = func(results game.FinalResultsPayload) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.StoreFinalResults(ctx, g.ID, results); err != nil {
			log.WithError(err).Warn("final results persistence failed")
		}
	}

	srv := server.New(g, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/game/ws", srv.HandleWS)
	mux.HandleFunc("/game/history", func(w http.ResponseWriter, r *http.Request) {
		records, err := cache.ActionHistory(r.Context(), g.ID.String())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			log.WithError(err).Warn("history encode failed")
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.WithField("addr", cfg.ListenAddr).Info("auction server listening")
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
