package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/riddle-backend/internal/domain"
)

// Message types
const (
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message is the envelope for every frame sent to clients
type Message struct {
	Type      string        `json:"type"`
	Period    domain.Period `json:"period,omitempty"`
	Data      any           `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Source loads the page pushed to subscribers of a period
type Source interface {
	GetTopPlayers(ctx context.Context, period domain.Period, n int) (*domain.LeaderboardPage, error)
}

// Hub tracks connected clients by leaderboard period and pushes the top of
// a period to its subscribers after it changes. Changes are coalesced and
// flushed once per interval.
type Hub struct {
	clients    map[domain.Period]map[*Client]bool
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest
	changed     chan domain.Period

	source   Source
	topN     int
	interval time.Duration

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	period domain.Period
}

// NewHub creates a hub that reads pages from source
func NewHub(source Source, topN int, interval time.Duration, logger *slog.Logger) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[domain.Period]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		changed:     make(chan domain.Period, 256),
		source:      source,
		topN:        topN,
		interval:    interval,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	dirty := make(map[domain.Period]bool)

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for period, clients := range h.clients {
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.clients, period)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.period]; !ok {
				h.clients[req.period] = make(map[*Client]bool)
			}
			h.clients[req.period][req.client] = true
			h.mu.Unlock()
			dirty[req.period] = true

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.period]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.period)
				}
			}
			h.mu.Unlock()

		case period := <-h.changed:
			dirty[period] = true

		case <-ticker.C:
			for period := range dirty {
				if h.GetSubscriberCount(period) > 0 {
					h.push(period)
				}
				delete(dirty, period)
			}
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// LeaderboardChanged queues a push for period. It never blocks the caller.
func (h *Hub) LeaderboardChanged(period domain.Period) {
	select {
	case h.changed <- period:
	default:
		h.logger.Warn("change queue full, dropping update", "period", period)
	}
}

func (h *Hub) push(period domain.Period) {
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()

	page, err := h.source.GetTopPlayers(ctx, period, h.topN)
	if err != nil {
		h.logger.Warn("loading leaderboard for push failed", "period", period, "error", err)
		return
	}
	h.broadcast(&Message{
		Type:      MessageTypeLeaderboardUpdate,
		Period:    period,
		Data:      page,
		Timestamp: time.Now().UTC(),
	})
}

// broadcast sends a message to every subscriber of its period
func (h *Hub) broadcast(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[message.Period] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a period's subscribers
func (h *Hub) Subscribe(client *Client, period domain.Period) {
	h.subscribe <- &subscriptionRequest{client: client, period: period}
}

// Unsubscribe removes a client from a period's subscribers
func (h *Hub) Unsubscribe(client *Client, period domain.Period) {
	h.unsubscribe <- &subscriptionRequest{client: client, period: period}
}

// GetSubscriberCount returns the number of subscribers for a period
func (h *Hub) GetSubscriberCount(period domain.Period) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[period])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
