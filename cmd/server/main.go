// cmd/server/main.go
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/openlobby/signalserver/internal/auth"
	"github.com/openlobby/signalserver/internal/config"
	"github.com/openlobby/signalserver/internal/handlers"
	"github.com/openlobby/signalserver/internal/middleware"
	"github.com/openlobby/signalserver/internal/registry"
	"github.com/openlobby/signalserver/internal/signal"
)

const defaultAddr = ":3536"

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	challenges := auth.NewChallengeStore(cfg.ChallengeTTL)
	tokens := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.TokenTTL)
	reg := registry.New(logger)

	srv := &handlers.Server{
		Log:        logger,
		Challenges: challenges,
		Tokens:     tokens,
		Registry:   reg,
		Signal: &signal.Server{
			Registry: reg,
			Peers:    signal.NewPeerRegistry(logger),
			Log:      logger,
		},
	}

	// Expired challenges are swept on the same cadence as their TTL. This is
	// the only background work in the process.
	go func() {
		ticker := time.NewTicker(cfg.ChallengeTTL)
		defer ticker.Stop()
		for range ticker.C {
			challenges.Sweep()
		}
	}()

	addr := defaultAddr
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	handler := cors.AllowAll().Handler(middleware.LogMiddleware(logger)(srv.Routes()))
	logger.Infof("listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
