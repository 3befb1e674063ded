package handler

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/duel-lords/internal/domain"
	"github.com/duel-lords/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Page sizes of the HTML views
const (
	homeLimit        = 10
	leaderboardLimit = 20
)

// TournamentReader is the read side of the tournament service
type TournamentReader interface {
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	PlayerCount(ctx context.Context) (int64, error)
	ListPlayers(ctx context.Context) ([]domain.Player, error)
	GetPlayer(ctx context.Context, discordID string) (*domain.Player, error)
	UpcomingMatches(ctx context.Context, limit int) ([]domain.Match, error)
	Ping(ctx context.Context) error
}

// Handler provides the HTTP handlers of the web process
type Handler struct {
	service TournamentReader
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service TournamentReader, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Pages
	r.Get("/", h.Index)
	r.Get("/leaderboard", h.LeaderboardPage)

	// Status and health
	r.Get("/api/status", h.Status)
	r.Get("/keep_alive", h.KeepAlive)
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/players", h.ListPlayers)
		r.Get("/players/{discordID}", h.GetPlayer)
		r.Get("/matches/upcoming", h.UpcomingMatches)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps domain errors to status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("failed to render page", "page", name, "error", err)
	}
}

type pageData struct {
	Title        string
	Server       string
	Entries      []domain.LeaderboardEntry
	TotalPlayers int64
}

// Index renders the home page with the top fighters
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context(), homeLimit)
	if err != nil {
		h.logger.Error("failed to load leaderboard", "error", err)
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}
	total, err := h.service.PlayerCount(r.Context())
	if err != nil {
		h.logger.Error("failed to count players", "error", err)
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}

	h.render(w, "index.html", pageData{
		Title:        "Home",
		Server:       domain.ServerAddress(),
		Entries:      entries,
		TotalPlayers: total,
	})
}

// LeaderboardPage renders the full leaderboard
func (h *Handler) LeaderboardPage(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context(), leaderboardLimit)
	if err != nil {
		h.logger.Error("failed to load leaderboard", "error", err)
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}

	h.render(w, "leaderboard.html", pageData{
		Title:   "Leaderboard",
		Server:  domain.ServerAddress(),
		Entries: entries,
	})
}

// Status reports that the bot is online
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"bot":     "Duel Lords",
		"message": "Bot is running successfully!",
	})
}

// KeepAlive answers uptime monitors
func (h *Handler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "alive",
		"message": "Duel Lords bot is running!",
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]int{
		"total_connections":       h.hub.TotalConnections(),
		"leaderboard_subscribers": h.hub.SubscriberCount(websocket.TopicLeaderboard),
		"matches_subscribers":     h.hub.SubscriberCount(websocket.TopicMatches),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, errors.New("database unavailable"))
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// queryLimit reads ?limit=; absent means 0 so the service applies its default
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.ErrInvalidRequest
	}
	return limit, nil
}

// GetLeaderboard returns the ranked leaderboard
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "leaderboard", err)
		return
	}
	total, err := h.service.PlayerCount(r.Context())
	if err != nil {
		h.writeServiceError(w, "player count", err)
		return
	}

	h.writeSuccess(w, websocket.LeaderboardUpdate{
		Entries:      entries,
		TotalPlayers: total,
	})
}

// ListPlayers returns every active player
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.service.ListPlayers(r.Context())
	if err != nil {
		h.writeServiceError(w, "list players", err)
		return
	}
	if players == nil {
		players = []domain.Player{}
	}
	h.writeSuccess(w, players)
}

// GetPlayer returns one active player
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	discordID := chi.URLParam(r, "discordID")
	if err := domain.ValidateDiscordID(discordID); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	player, err := h.service.GetPlayer(r.Context(), discordID)
	if err != nil {
		h.writeServiceError(w, "get player", err)
		return
	}
	h.writeSuccess(w, player)
}

// UpcomingMatches returns scheduled matches that have not started
func (h *Handler) UpcomingMatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	matches, err := h.service.UpcomingMatches(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "upcoming matches", err)
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	h.writeSuccess(w, matches)
}
