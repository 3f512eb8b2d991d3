package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/logging"
)

type staticSource struct {
	calls atomic.Int32
}

func (s *staticSource) GetTopPlayers(_ context.Context, period domain.Period, n int) (*domain.LeaderboardPage, error) {
	s.calls.Add(1)
	return &domain.LeaderboardPage{
		Period:  period,
		Entries: []domain.LeaderboardEntry{{Rank: 1, UserID: "u1", Username: "ada", Score: 3}},
		Total:   1,
	}, nil
}

func startHub(t *testing.T) (*Hub, *staticSource, string) {
	t.Helper()
	logger := logging.Discard()
	source := &staticSource{}
	hub := NewHub(source, 10, 20*time.Millisecond, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, source, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first frame of the given type
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestSubscriberReceivesLeaderboard(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Period: "weekly"}))
	ack := readUntil(t, conn, "subscribed")
	assert.Equal(t, "weekly", ack["period"])

	update := readUntil(t, conn, MessageTypeLeaderboardUpdate)
	assert.Equal(t, "weekly", update["period"])
	data, ok := update["data"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, data["leaderboard"], 1)

	hub.LeaderboardChanged(domain.PeriodWeekly)
	readUntil(t, conn, MessageTypeLeaderboardUpdate)
	assert.Equal(t, 1, hub.GetSubscriberCount(domain.PeriodWeekly))
}

func TestChangesWithoutSubscribersAreNotLoaded(t *testing.T) {
	hub, source, _ := startHub(t)

	hub.LeaderboardChanged(domain.PeriodDaily)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, source.calls.Load())
}

func TestPingAndInvalidPeriod(t *testing.T) {
	_, _, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	readUntil(t, conn, MessageTypePong)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Period: "hourly"}))
	msg := readUntil(t, conn, MessageTypeError)
	assert.Equal(t, "unknown period", msg["data"].(map[string]any)["error"])
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Period: "daily"}))
	readUntil(t, conn, "subscribed")
	require.Eventually(t, func() bool { return hub.GetSubscriberCount(domain.PeriodDaily) == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.GetSubscriberCount(domain.PeriodDaily))
}
