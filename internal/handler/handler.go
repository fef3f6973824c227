package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"infrastreet/marketplace/internal/tools"
)

type Handler struct {
	router  *chi.Mux
	mcp     *tools.Server
	history *HistoryHandler
	logger  *zap.Logger
}

func NewHandler(mcp *tools.Server, history *HistoryHandler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	h := &Handler{
		router:  router,
		mcp:     mcp,
		history: history,
		logger:  logger,
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.router.Post("/mcp", h.MCP)

	h.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Get("/tools", h.ListTools)
		r.Post("/tools/{name}", h.CallTool)
		if h.history != nil {
			r.Get("/customers/{phone}/history", h.history.GetHistory)
		}
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
