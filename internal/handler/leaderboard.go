package handler

import (
	"net/http"
	"strconv"

	"github.com/riddle-backend/internal/domain"
)

func parsePeriod(r *http.Request) (domain.Period, error) {
	period, ok := domain.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		return "", domain.BadRequest("Invalid period. Use daily, weekly, monthly or alltime")
	}
	return period, nil
}

// GetLeaderboard returns the top players of a period
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit := h.config.Leaderboard.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}

	page, err := h.leaderboard.GetTopPlayers(r.Context(), period, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, page)
}

// GetRank returns the caller's position in a period
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entry, err := h.leaderboard.GetUserRank(r.Context(), period, userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]any{"rank": entry})
}
