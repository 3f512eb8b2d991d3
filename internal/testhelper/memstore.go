package testhelper

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/riddle-backend/internal/domain"
)

// MemStore is an in-memory stand-in for the Postgres repository
type MemStore struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	stats         map[string]*domain.UserStats
	riddles       map[string]*domain.Riddle
	riddleOrder   []string
	attempts      []*domain.RiddleAttempt
	daily         map[string]*domain.DailyProgress
	subscriptions []*domain.Subscription
	leaderboard   map[domain.Period]map[string]snapshotRow
	saved         map[string][]domain.SavedRiddle

	// PingErr is returned by Ping when set
	PingErr error
}

type snapshotRow struct {
	entry     domain.LeaderboardEntry
	updatedAt time.Time
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*domain.User),
		stats:       make(map[string]*domain.UserStats),
		riddles:     make(map[string]*domain.Riddle),
		daily:       make(map[string]*domain.DailyProgress),
		leaderboard: make(map[domain.Period]map[string]snapshotRow),
		saved:       make(map[string][]domain.SavedRiddle),
	}
}

func (m *MemStore) Ping(context.Context) error {
	return m.PingErr
}

// AddUser inserts a user directly, bypassing uniqueness checks
func (m *MemStore) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
	m.stats[u.ID] = &domain.UserStats{UserID: u.ID}
}

// AddRiddle inserts a riddle directly
func (m *MemStore) AddRiddle(r domain.Riddle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.riddles[r.ID]; !ok {
		m.riddleOrder = append(m.riddleOrder, r.ID)
	}
	m.riddles[r.ID] = &r
}

// Attempts returns copies of a user's attempts in creation order
func (m *MemStore) Attempts(userID string) []domain.RiddleAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RiddleAttempt
	for _, a := range m.attempts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out
}

// DailyProgress returns the progress row for a user and day
func (m *MemStore) DailyProgress(userID string, day time.Time) domain.DailyProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.daily[dailyKey(userID, day)]; ok {
		return *p
	}
	return domain.DailyProgress{UserID: userID, Date: domain.StartOfDay(day)}
}

func dailyKey(userID string, day time.Time) string {
	return userID + "|" + domain.StartOfDay(day).Format("2006-01-02")
}

func (m *MemStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return domain.ErrEmailTaken
		}
		if u.Username != "" && existing.Username == u.Username {
			return domain.ErrUsernameTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	m.stats[u.ID] = &domain.UserStats{UserID: u.ID}
	return nil
}

func (m *MemStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.findUser(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MemStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return m.findUser(func(u *domain.User) bool { return u.Username != "" && u.Username == username })
}

func (m *MemStore) GetUserByResetToken(_ context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	return m.findUser(func(u *domain.User) bool {
		return u.ResetTokenHash != "" && u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now)
	})
}

func (m *MemStore) findUser(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MemStore) SetPasswordResetToken(_ context.Context, userID, tokenHash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpiry = &expiry
	return nil
}

func (m *MemStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	return nil
}

func (m *MemStore) GetRiddle(_ context.Context, id string) (*domain.Riddle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riddles[id]
	if !ok {
		return nil, domain.ErrRiddleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) SelectRiddleCandidate(_ context.Context, userID string, difficulty domain.Difficulty) (*domain.Riddle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	solved := make(map[string]bool)
	for _, a := range m.attempts {
		if a.UserID == userID && a.Solved {
			solved[a.RiddleID] = true
		}
	}

	var best *domain.Riddle
	for _, id := range m.riddleOrder {
		r := m.riddles[id]
		if !r.IsActive || solved[id] || (difficulty != "" && r.Difficulty != difficulty) {
			continue
		}
		if best == nil || r.TimesAttempted < best.TimesAttempted {
			best = r
		}
	}
	if best == nil {
		return nil, domain.ErrNoRiddlesAvailable
	}
	cp := *best
	return &cp, nil
}

func (m *MemStore) IncrementServed(_ context.Context, riddleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.riddles[riddleID]; ok {
		r.TimesAttempted++
	}
	return nil
}

func (m *MemStore) CreateRiddle(_ context.Context, r *domain.Riddle) error {
	m.AddRiddle(*r)
	return nil
}

func (m *MemStore) GetOpenAttempt(_ context.Context, userID, riddleID string) (*domain.RiddleAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.UserID == userID && a.RiddleID == riddleID && !a.Solved {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAttemptNotFound
}

func (m *MemStore) CreateAttempt(_ context.Context, a *domain.RiddleAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *MemStore) CountAttemptsSince(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.attempts {
		if a.UserID == userID && !a.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) RecordSubmission(_ context.Context, s domain.Submission) (*domain.SubmissionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var attempt *domain.RiddleAttempt
	for _, a := range m.attempts {
		if a.ID == s.AttemptID {
			attempt = a
		}
	}
	if attempt == nil {
		return nil, domain.ErrAttemptNotFound
	}
	u, ok := m.users[s.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	attempt.Solved = s.Correct
	attempt.Attempts++
	attempt.HintsUsed = max(attempt.HintsUsed, s.HintsUsed)
	attempt.TimeSpent = s.TimeSpent
	if s.Correct {
		at := s.At
		attempt.CompletedAt = &at
	}

	key := dailyKey(s.UserID, s.At)
	p, ok := m.daily[key]
	if !ok {
		p = &domain.DailyProgress{UserID: s.UserID, Date: domain.StartOfDay(s.At)}
		m.daily[key] = p
	}
	p.RiddlesAttempted++

	st := m.stats[s.UserID]
	st.TotalAttempts++

	if s.Correct {
		p.RiddlesSolved++
		if r, ok := m.riddles[s.RiddleID]; ok {
			r.TimesSolved++
		}
		u.CurrentStreak, u.LongestStreak = domain.NextStreak(u.LastSolvedDate, u.CurrentStreak, u.LongestStreak, s.At)
		at := s.At
		u.LastSolvedDate = &at
		u.TotalRiddlesSolved++
		st.TotalSolved++
		st.TotalHintsUsed += s.HintsUsed
		st.TotalTimeSpent += s.TimeSpent
	}

	return &domain.SubmissionOutcome{
		Username:           u.DisplayName(),
		TotalRiddlesSolved: u.TotalRiddlesSolved,
		CurrentStreak:      u.CurrentStreak,
	}, nil
}

func (m *MemStore) GetUserStats(_ context.Context, userID string) (*domain.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := m.users[userID]
	cp := *st
	cp.CurrentStreak = u.CurrentStreak
	cp.LongestStreak = u.LongestStreak
	cp.DailyLimit = u.RiddlesPerDayLimit
	return &cp, nil
}

func (m *MemStore) SaveRiddle(_ context.Context, userID, riddleID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.saved[userID] {
		if s.Riddle.ID == riddleID {
			return nil
		}
	}
	r, ok := m.riddles[riddleID]
	if !ok {
		return domain.ErrRiddleNotFound
	}
	m.saved[userID] = append(m.saved[userID], domain.SavedRiddle{Riddle: *r, SavedAt: at})
	return nil
}

func (m *MemStore) ListSavedRiddles(_ context.Context, userID string) ([]domain.SavedRiddle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SavedRiddle, 0, len(m.saved[userID]))
	for i := len(m.saved[userID]) - 1; i >= 0; i-- {
		out = append(out, m.saved[userID][i])
	}
	return out, nil
}

func (m *MemStore) GetLatestSubscription(_ context.Context, userID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Subscription
	for _, s := range m.subscriptions {
		if s.UserID == userID && (latest == nil || !s.CreatedAt.Before(latest.CreatedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemStore) FindUserIDByCustomer(_ context.Context, provider, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.subscriptions) - 1; i >= 0; i-- {
		s := m.subscriptions[i]
		if s.Provider == provider && s.CustomerID == customerID {
			return s.UserID, nil
		}
	}
	return "", domain.ErrUserNotFound
}

func (m *MemStore) SaveSubscription(_ context.Context, s *domain.Subscription, ent domain.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[s.UserID]
	if !ok {
		return domain.ErrUserNotFound
	}
	cp := *s
	replaced := false
	for i, existing := range m.subscriptions {
		if existing.ID == s.ID {
			m.subscriptions[i] = &cp
			replaced = true
		}
	}
	if !replaced {
		m.subscriptions = append(m.subscriptions, &cp)
	}
	u.IsPremium = ent.IsPremium
	u.SubscriptionTier = ent.Tier
	u.RiddlesPerDayLimit = ent.RiddlesPerDayLimit
	return nil
}

// Subscriptions returns every row stored for a user
func (m *MemStore) Subscriptions(userID string) []domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subscriptions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out
}

func (m *MemStore) UpsertLeaderboardEntries(_ context.Context, period domain.Period, entries []domain.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	board, ok := m.leaderboard[period]
	if !ok {
		board = make(map[string]snapshotRow)
		m.leaderboard[period] = board
	}
	now := time.Now()
	for _, e := range entries {
		board[e.UserID] = snapshotRow{entry: e, updatedAt: now}
	}
	return nil
}

func (m *MemStore) GetLeaderboardEntries(_ context.Context, period domain.Period, since time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(m.leaderboard[period]))
	for _, row := range m.leaderboard[period] {
		if row.updatedAt.Before(since) {
			continue
		}
		entries = append(entries, row.entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}
