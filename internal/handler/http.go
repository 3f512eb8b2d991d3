package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/riddle-backend/internal/auth"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/metrics"
	"github.com/riddle-backend/internal/service"
	"github.com/riddle-backend/internal/websocket"
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps are the collaborators the HTTP layer dispatches to
type Deps struct {
	Auth          *service.AuthService
	Riddles       *service.RiddleService
	Leaderboard   *service.LeaderboardService
	Subscriptions *service.SubscriptionService
	Tokens        *auth.TokenManager
	Hub           *websocket.Hub
	DB            Pinger
	Cache         Pinger
	Config        *config.Config
	Logger        *slog.Logger
}

// Handler provides HTTP handlers for the riddle API
type Handler struct {
	auth          *service.AuthService
	riddles       *service.RiddleService
	leaderboard   *service.LeaderboardService
	subscriptions *service.SubscriptionService
	tokens        *auth.TokenManager
	hub           *websocket.Hub
	db            Pinger
	cache         Pinger
	config        *config.Config
	logger        *slog.Logger
	validate      *validator.Validate
	started       time.Time

	authLimiter   *ipLimiter
	riddleLimiter *ipLimiter
}

// NewHandler creates a new HTTP handler
func NewHandler(d Deps) *Handler {
	return &Handler{
		auth:          d.Auth,
		riddles:       d.Riddles,
		leaderboard:   d.Leaderboard,
		subscriptions: d.Subscriptions,
		tokens:        d.Tokens,
		hub:           d.Hub,
		db:            d.DB,
		cache:         d.Cache,
		config:        d.Config,
		logger:        d.Logger,
		validate:      newValidator(),
		started:       time.Now(),
		authLimiter:   newIPLimiter(d.Config.RateLimit.AuthPerMinute, msgAuthLimited),
		riddleLimiter: newIPLimiter(d.Config.RateLimit.RiddlePerMinute, msgRiddleLimited),
	}
}

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the error half of the envelope
type APIError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Health)
		r.Get("/db", h.HealthDB)
		r.Get("/full", h.HealthFull)
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(h.authLimiter.middleware(h)).Post("/register", h.Register)
			r.With(h.authLimiter.middleware(h)).Post("/login", h.Login)
			r.With(h.authLimiter.middleware(h)).Post("/forgot-password", h.ForgotPassword)
			r.With(h.authLimiter.middleware(h)).Post("/reset-password", h.ResetPassword)
			r.With(h.authenticate).Get("/profile", h.Profile)
		})

		r.Route("/riddles", func(r chi.Router) {
			r.Use(h.authenticate)
			r.With(h.riddleLimiter.middleware(h)).Get("/", h.GetRiddle)
			r.Post("/submit", h.SubmitAnswer)
			r.Get("/stats", h.GetStats)
			r.Post("/validate-ai", h.ValidateAI)
			r.With(h.riddleLimiter.middleware(h)).Get("/generate-ai", h.GenerateAI)
			r.Post("/save-custom", h.SaveCustom)
			r.Get("/saved-riddles", h.SavedRiddles)
			r.Get("/{riddleID}/hint", h.GetHint)
			r.Get("/{riddleID}/ai-hint", h.GetAIHint)
			r.Get("/{riddleID}/variation", h.GetVariation)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.With(h.optionalAuth).Get("/", h.GetLeaderboard)
			r.With(h.authenticate).Get("/rank", h.GetRank)
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Post("/webhook", h.Webhook)
			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Get("/status", h.SubscriptionStatus)
				r.Post("/sync", h.SyncSubscription)
				r.Post("/checkout", h.Checkout)
				r.Post("/portal", h.Portal)
				r.Get("/offerings", h.Offerings)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, domain.NotFound(fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path), nil))
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, Stripe-Signature")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through the application logger
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
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
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) writeCreated(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// writeError maps err to a status and message. Unexpected failures are logged
// and their detail is withheld in production.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := domain.StatusOf(err)
	message := err.Error()

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
		if appErr == nil && h.config.App.IsProduction() {
			message = "Internal server error"
		}
	}

	h.writeJSON(w, status, APIResponse{Success: false, Error: &APIError{Message: message}})
}

// decode reads a JSON body into dst and validates its tags
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewAppError(http.StatusRequestEntityTooLarge, "Request body too large", err)
		}
		return domain.BadRequest("Invalid JSON body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.BadRequest("Request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.BadRequest("Invalid JSON body")
	}
	return h.check(dst)
}

// check runs struct validation and turns the first failure into a message
func (h *Handler) check(dst any) error {
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if m, ok := dst.(messager); ok {
				return domain.BadRequest(m.message(verrs[0]))
			}
			return domain.BadRequest(fmt.Sprintf("%s is invalid", verrs[0].Field()))
		}
		return domain.BadRequest("Validation failed")
	}
	return nil
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}
