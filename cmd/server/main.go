package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agrichat/community-chat/internal/api"
	"github.com/agrichat/community-chat/internal/chat"
	"github.com/agrichat/community-chat/internal/config"
	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/moderation"
	"github.com/agrichat/community-chat/internal/rooms"
	"github.com/agrichat/community-chat/internal/stats"
	_ "github.com/lib/pq"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address")
	flag.StringVar(&dsn, "dsn", "", "database connection string")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[agrichat] ", log.LstdFlags)

	cfg, err := config.FromEnv(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgCommunityRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	var moderator moderation.Moderator
	if cfg.ModerationURL != "" {
		moderator = moderation.NewGeminiModerator(cfg.ModerationURL, cfg.ModerationAPIKey)
	} else {
		logger.Println("no moderation service configured, all messages allowed")
	}
	gate := moderation.NewGate(moderator, cfg.ModerationTimeout, cfg.ModerationFailOpen, logger)

	chatServer, err := chat.NewChatServer(logger, dbConn, gate, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	directory := rooms.NewDirectory(dbConn, logger)

	srv := api.NewCommunityApp(mux, logger, chatServer, dbConn, directory, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	chatServer.Shutdown()

	logger.Println("shutdown complete")
}
