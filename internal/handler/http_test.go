package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/auth"
	"github.com/riddle-backend/internal/billing"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
	"github.com/riddle-backend/internal/redis"
	"github.com/riddle-backend/internal/service"
	"github.com/riddle-backend/internal/testhelper"
	"github.com/riddle-backend/internal/websocket"
)

const webhookToken = "rc-webhook-secret"

type testServer struct {
	router http.Handler
	store  *testhelper.MemStore
	cfg    *config.Config
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config), db Pinger) *testServer {
	t.Helper()
	logger := logging.Discard()

	cfg := config.DefaultConfig()
	cfg.Game.FreeDailyLimit = 2
	cfg.RateLimit.AuthPerMinute = 50
	cfg.RateLimit.RiddlePerMinute = 50
	cfg.RevenueCat.WebhookAuthToken = webhookToken

	remote := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(remote.Close)
	cfg.RevenueCat.BaseURL = remote.URL

	if mutate != nil {
		mutate(cfg)
	}

	_, client := testhelper.NewRedis(t)
	store := testhelper.NewMemStore()
	if db == nil {
		db = store
	}

	cache := redis.NewCache(client, logger)
	quota := redis.NewQuotaCounter(client, logger)
	tokens := auth.NewTokenManager(cfg.JWT)

	leaderboard := service.NewLeaderboardService(redis.NewLeaderboard(client, logger), store, &cfg.Leaderboard, logger)
	hub := websocket.NewHub(leaderboard, 10, time.Second, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)
	leaderboard.SetNotifier(hub)

	reconciler := billing.NewReconciler(store, cache, cfg.Game, logger)
	h := NewHandler(Deps{
		Auth:          service.NewAuthService(store, tokens, cache, quota, service.LogResetSender{Logger: logger}, cfg.Game, logger),
		Riddles:       service.NewRiddleService(store, quota, cache, leaderboard, nil, cfg.Game, logger),
		Leaderboard:   leaderboard,
		Subscriptions: service.NewSubscriptionService(store, billing.NewRevenueCat(cfg.RevenueCat, logger), reconciler, cfg.Stripe, logger),
		Tokens:        tokens,
		Hub:           hub,
		DB:            db,
		Cache:         PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
		Config:        cfg,
		Logger:        logger,
	})

	store.AddRiddle(domain.Riddle{
		ID:         "r1",
		Question:   "What has keys but can't open locks?",
		Answer:     "keyboard",
		Difficulty: domain.DifficultyEasy,
		Category:   "tech",
		Hints:      []string{"You type on it", "It sits next to a mouse"},
		IsActive:   true,
	})
	store.AddRiddle(domain.Riddle{
		ID:         "r2",
		Question:   "What gets wetter the more it dries?",
		Answer:     "towel",
		Difficulty: domain.DifficultyMedium,
		Category:   "household",
		Hints:      []string{"Bathroom"},
		IsActive:   true,
	})

	return &testServer{router: h.Router(), store: store, cfg: cfg}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func (s *testServer) register(t *testing.T, email, username string) (string, string) {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
		"username": username,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result domain.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.Token)
	return result.User.ID, result.Token
}

func TestRegisterLoginProfile(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.register(t, "ada@example.com", "ada")

	rec, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = s.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile struct {
		User domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "ada", profile.User.Username)
	assert.Equal(t, 2, profile.User.RiddlesPerDayLimit)

	rec, env = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", env.Error.Message)
}

func TestValidationMessages(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email: Invalid email address", env.Error.Message)

	rec, env = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password: Password must be at least 8 characters", env.Error.Message)

	rec, env = s.do(t, http.MethodPost, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body is required", env.Error.Message)
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", env.Error.Message)

	rec, env = s.do(t, http.MethodGet, "/api/riddles", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication failed", env.Error.Message)
}

func TestRiddleSolveUpdatesLeaderboard(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.register(t, "ada@example.com", "ada")

	rec, env := s.do(t, http.MethodGet, "/api/riddles?difficulty=easy", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var served struct {
		Riddle map[string]any `json:"riddle"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &served))
	assert.Equal(t, "r1", served.Riddle["id"])
	assert.NotContains(t, served.Riddle, "answer")

	rec, env = s.do(t, http.MethodPost, "/api/riddles/submit", token, map[string]any{
		"riddleId": "r1", "answer": " Keyboard ", "timeSpent": 12,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result domain.AnswerResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Correct)

	rec, env = s.do(t, http.MethodGet, "/api/leaderboard?period=weekly", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.LeaderboardPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "ada", page.Entries[0].Username)
	assert.Equal(t, int64(1), page.Entries[0].Score)

	rec, env = s.do(t, http.MethodGet, "/api/leaderboard/rank?period=alltime", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rank struct {
		Rank domain.LeaderboardEntry `json:"rank"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rank))
	assert.Equal(t, int64(1), rank.Rank.Rank)
}

func TestDailyQuota(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.register(t, "ada@example.com", "ada")

	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodGet, "/api/riddles", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec, env := s.do(t, http.MethodGet, "/api/riddles", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Daily riddle limit reached. Upgrade to premium for unlimited riddles.", env.Error.Message)
}

func TestHintGatingAndBadInput(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.register(t, "ada@example.com", "ada")

	rec, _ := s.do(t, http.MethodGet, "/api/riddles?difficulty=easy", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/api/riddles/r1/hint?hintNumber=0", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hint domain.HintResult
	require.NoError(t, json.Unmarshal(env.Data, &hint))
	assert.Equal(t, "You type on it", hint.Hint)

	rec, _ = s.do(t, http.MethodGet, "/api/riddles/r1/hint?hintNumber=1", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/riddles/r1/hint?hintNumber=two", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid hint number", env.Error.Message)

	rec, _ = s.do(t, http.MethodGet, "/api/riddles?difficulty=impossible", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/riddles/generate-ai", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "AI features are not configured", env.Error.Message)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.RateLimit.AuthPerMinute = 2 }, nil)
	body := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, env := s.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many authentication attempts, please try again later.", env.Error.Message)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestWebhookGrantsPremium(t *testing.T) {
	s := newTestServer(t, nil, nil)
	id, token := s.register(t, "ada@example.com", "ada")

	payload := map[string]any{"event": map[string]any{
		"id":                 "evt_1",
		"type":               "INITIAL_PURCHASE",
		"app_user_id":        id,
		"product_id":         "premium_monthly",
		"event_timestamp_ms": time.Now().UnixMilli(),
	}}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/subscription/webhook", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+webhookToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true,"applied":1}`, rec.Body.String())

	rec, env := s.do(t, http.MethodGet, "/api/subscription/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.SubscriptionStatusView
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.IsPremium)
	assert.Equal(t, domain.StateActive, status.State)

	req = httptest.NewRequest(http.MethodPost, "/api/subscription/webhook", bytes.NewReader(raw))
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/subscription/webhook", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutUnsupportedForRevenueCat(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.register(t, "ada@example.com", "ada")

	rec, env := s.do(t, http.MethodPost, "/api/subscription/checkout", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Message, "handled by the mobile app")

	rec, env = s.do(t, http.MethodGet, "/api/subscription/offerings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "premium_monthly")
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route GET /api/nope not found", env.Error.Message)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"healthy"`)

	rec, env = s.do(t, http.MethodGet, "/health/full", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"cache"`)

	down := newTestServer(t, nil, PingFunc(func(context.Context) error { return errors.New("connection refused") }))
	rec, env = down.do(t, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Database health check failed", env.Error.Message)
	assert.Equal(t, "connection refused", env.Error.Details)

	rec, env = down.do(t, http.MethodGet, "/health/full", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Health check failed", env.Error.Message)
}

func TestLeaderboardRejectsUnknownPeriod(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodGet, "/api/leaderboard?period=yearly", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Message, "Invalid period")

	rec, env = s.do(t, http.MethodGet, "/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"period":"daily","leaderboard":[],"total":0}`, string(env.Data))
}
