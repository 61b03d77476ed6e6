package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/agrichat/community-chat/internal/chat"
	"github.com/agrichat/community-chat/internal/config"
	"github.com/agrichat/community-chat/internal/database"
	"github.com/agrichat/community-chat/internal/rooms"
	"github.com/agrichat/community-chat/internal/stats"
	"github.com/gorilla/handlers"
)

type CommunityApp struct {
	log            *log.Logger
	db             database.CommunityRepository
	mux            *http.Server
	cs             *chat.ChatServer
	rooms          *rooms.Directory
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewCommunityApp(mux *http.ServeMux, logger *log.Logger, cs *chat.ChatServer, db database.CommunityRepository, dir *rooms.Directory, su stats.StatsProvider, cfg *config.Config) *CommunityApp {
	s := &CommunityApp{
		log:            logger,
		db:             db,
		cs:             cs,
		rooms:          dir,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	for _, metric := range []string{
		stats.MessagesDeleted,
		stats.MediaUploads,
	} {
		su.RegisterMetric(metric)
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/community/my-room", s.authMiddleware(s.myRoom))
	mux.Handle("GET /api/community/messages/{roomID}", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/community/online/{roomID}", s.authMiddleware(s.onlineUsers))
	mux.Handle("DELETE /api/community/message/{messageID}", s.authMiddleware(s.deleteMessage))
	mux.Handle("POST /api/community/upload", s.authMiddleware(s.uploadMedia))
	mux.Handle("GET /api/community/media/{blobID}", s.authMiddleware(s.serveMedia))
	mux.HandleFunc("GET /api/community/ws/{roomID}", s.serveWs)
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *CommunityApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CommunityApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
