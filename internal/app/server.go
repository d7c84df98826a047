package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kineticlabs/battintel/internal/api/handlers"
	appMiddleware "github.com/kineticlabs/battintel/internal/api/middlewares"
	"github.com/kineticlabs/battintel/internal/config"
	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/core/ingestion_engine"
	"github.com/kineticlabs/battintel/internal/rag"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.Store, obj core.ObjectClient, pipeline *ingestion_engine.Pipeline, orch *rag.Orchestrator, conv *rag.ConversationManager) *Server {
	authHandler := handlers.NewAuthHandler(store, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(store, obj, pipeline, cfg)
	chatHandler := handlers.NewChatHandler(orch, conv, store, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)
		api.Get("/chat/health", chatHandler.Health)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

			protected.Post("/chat/query", chatHandler.Query)
			protected.Get("/chat/history/{session_id}", chatHandler.History)
			protected.Post("/chat/feedback", chatHandler.Feedback)
			protected.Delete("/chat/conversation/{session_id}", chatHandler.DeleteConversation)

			protected.Post("/documents/upload", docHandler.Upload)
			protected.Post("/documents/ingest", docHandler.TriggerIngestion)
			protected.Get("/documents", docHandler.List)
			protected.Get("/documents/stats", docHandler.Stats)
			protected.Get("/documents/{id}", docHandler.Get)
			protected.Get("/documents/{id}/chunks", docHandler.Chunks)
			protected.Delete("/documents/{id}", docHandler.Delete)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
