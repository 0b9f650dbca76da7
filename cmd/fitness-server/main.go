// Main package for the fitness tracking server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/MarkKirilenko/tranning-app/internal/store"
	"github.com/MarkKirilenko/tranning-app/pkg/config"
	"github.com/MarkKirilenko/tranning-app/pkg/nutrition"
	"github.com/MarkKirilenko/tranning-app/pkg/router"
	"github.com/MarkKirilenko/tranning-app/pkg/server"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	//
	// Flags
	configPath := flag.String("config", "fitness.yml", "Path to the YAML config file")
	listenAddress := flag.String("listen", "", "TCP listen address, overrides the config file")
	databasePath := flag.String("db", "", "SQLite database path, overrides the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return
	}
	if *listenAddress != "" {
		cfg.ListenAddress = *listenAddress
	}
	if *databasePath != "" {
		cfg.DatabasePath = *databasePath
	}

	//
	// Storage + routing setup
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
		return
	}
	defer db.Close()

	plans, err := nutrition.Load(cfg.NutritionPath, logger)
	if err != nil {
		logger.Error("Failed to load nutrition plans", zap.String("path", cfg.NutritionPath), zap.Error(err))
		return
	}

	rt := router.New(db, plans, logger)

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer shutdownRelease()

	wg := sync.WaitGroup{}

	tcpServer, err := server.CreateTcpServer(rt, server.TcpServerParams{
		ListenAddress:      cfg.ListenAddress,
		AcceptPollInterval: cfg.AcceptPollInterval,
		ReadChunkSize:      cfg.ReadChunkSize,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("Failed to create TCP server", zap.Error(err))
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpServer.Start(shutdownCtx); err != nil {
			logger.Error("TCP server exited with error", zap.Error(err))
			shutdownRelease()
		}
	}()

	if cfg.Websocket.Enabled {
		wsServer, wsServerErr := server.CreateWebsocketServer(rt, server.WebsocketServerParams{
			ListenAddress:    cfg.Websocket.ListenAddress,
			ListenEndpoint:   cfg.Websocket.ListenEndpoint,
			AllowAllHosts:    cfg.Websocket.AllowAllHosts,
			AllowlistedHosts: cfg.Websocket.AllowlistedHosts,
			DenylistedHosts:  cfg.Websocket.DenylistedHosts,
			Logger:           logger,
		})
		if wsServerErr != nil {
			logger.Error("Failed to create WebSocket server", zap.Error(wsServerErr))
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := wsServer.Start(shutdownCtx); err != nil {
				logger.Error("WebSocket server exited with error", zap.Error(err))
				shutdownRelease()
			}
		}()
	}

	wg.Wait()
}
