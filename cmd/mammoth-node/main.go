package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/mammothnet/mammoth-node/internal/agents"
	"github.com/mammothnet/mammoth-node/internal/chain"
	"github.com/mammothnet/mammoth-node/internal/claims"
	"github.com/mammothnet/mammoth-node/internal/config"
	"github.com/mammothnet/mammoth-node/internal/contacts"
	"github.com/mammothnet/mammoth-node/internal/deposits"
	"github.com/mammothnet/mammoth-node/internal/intents"
	"github.com/mammothnet/mammoth-node/internal/market"
	"github.com/mammothnet/mammoth-node/internal/observer"
	"github.com/mammothnet/mammoth-node/internal/peersync"
	"github.com/mammothnet/mammoth-node/internal/router"
	"github.com/mammothnet/mammoth-node/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var persister store.Persister
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresPersister(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres persister init failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		persister = pg
		logger.Info("state persistence: postgres")
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			logger.Error("data dir create failed", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		persister = store.NewFilePersister(cfg.StateFile)
		logger.Info("state persistence: file", "path", cfg.StateFile)
	}

	st, err := store.Open(ctx, persister, cfg, logger)
	if err != nil {
		logger.Error("state open failed", "error", err)
		os.Exit(1)
	}

	var ethClient chain.Client
	if cfg.EthRPCURL != "" {
		client, err := chain.Dial(ctx, cfg.EthRPCURL)
		if err != nil {
			logger.Error("eth rpc dial failed", "url", cfg.EthRPCURL, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		ethClient = client
		logger.Info("eth rpc connected", "url", cfg.EthRPCURL)
	}

	peerClient := peersync.NewClient(cfg.Token, time.Duration(cfg.PeerSyncTimeoutMs)*time.Millisecond)

	agentsSvc := agents.NewService(st, logger)
	intentsSvc := intents.NewService(st, logger)
	contactsSvc := contacts.NewService(st, peerClient, logger)
	marketSvc := market.NewService(st, cfg.BarterDefaultDueHours, logger)
	claimsSvc := claims.NewService(st, logger)
	depositsSvc := deposits.NewService(st, ethClient, cfg.TreasuryAddress, logger)
	peersSvc := peersync.NewService(st, peerClient, logger)

	handler := router.New(cfg.Token, router.Handlers{
		Agents:   agents.NewHandler(agentsSvc, logger),
		Intents:  intents.NewHandler(intentsSvc, logger),
		Contacts: contacts.NewHandler(contactsSvc, logger),
		Market:   market.NewHandler(marketSvc, logger),
		Claims:   claims.NewHandler(claimsSvc, logger),
		Deposits: deposits.NewHandler(depositsSvc, logger),
		Peers:    peersync.NewHandler(peersSvc, logger),
		Observer: observer.NewHandler(st, cfg.Host, cfg.Port, logger),
	})
	handler = cors.AllowAll().Handler(handler)

	go peersSvc.Loop(ctx, time.Duration(cfg.PeerSyncIntervalSec)*time.Second)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("mammoth node listening",
		"addr", cfg.Addr(),
		"nodeId", st.NodeID(),
		"token", tokenLabel(cfg.Token))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func tokenLabel(token string) string {
	if token == config.Defaults().Token {
		return "default-dev"
	}
	return "custom"
}
