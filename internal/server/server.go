package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/variantly/variantly/internal/engine"
	"github.com/variantly/variantly/internal/store"
)

type Server struct {
	store     *store.SQLiteStore
	engine    *engine.Engine
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	metrics   *serverMetrics
	log       *zap.Logger
	startTime time.Time
}

func New(s *store.SQLiteStore, port int, tokenFile string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	srv := &Server{
		store:     s,
		engine:    engine.New(s, log),
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		metrics:   newServerMetrics(),
		log:       log,
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.handler())
	s.router.HandleFunc("/v1/assign", s.handleAssign)
	s.router.HandleFunc("/v1/track", s.handleTrack)

	// Admin endpoints (token protected)
	s.router.Handle("/v1/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperiments)))
	s.router.Handle("/v1/experiments/", s.authMiddleware(http.HandlerFunc(s.handleExperimentSub)))
	s.router.Handle("/v1/profiles/", s.authMiddleware(http.HandlerFunc(s.handleProfile)))
}

func (s *Server) Start() error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("failed to write token file", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("variantly listening",
		zap.String("addr", addr),
		zap.String("admin_token", s.token))

	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a fixed token if crypto/rand fails
		return "a1b2c3d4e5f60718"
	}
	return hex.EncodeToString(bytes)
}
