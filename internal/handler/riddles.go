package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/riddle-backend/internal/domain"
)

func parseDifficulty(r *http.Request) (domain.Difficulty, error) {
	d, ok := domain.ParseDifficulty(r.URL.Query().Get("difficulty"))
	if !ok {
		return "", domain.BadRequest("Invalid difficulty. Use EASY, MEDIUM, HARD or EXPERT")
	}
	return d, nil
}

// GetRiddle serves the next riddle and consumes one unit of daily quota
func (h *Handler) GetRiddle(w http.ResponseWriter, r *http.Request) {
	difficulty, err := parseDifficulty(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	riddle, err := h.riddles.GetRiddle(r.Context(), userID(r), difficulty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]any{"riddle": riddle})
}

// SubmitAnswer grades an answer against the caller's open attempt
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.riddles.SubmitAnswer(r.Context(), userID(r), req.RiddleID, req.Answer, req.TimeSpent, req.HintsUsed)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// GetHint returns a stored hint; hints past the first need premium
func (h *Handler) GetHint(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("hintNumber"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, domain.BadRequest("Invalid hint number"))
			return
		}
		n = parsed
	}

	hint, err := h.riddles.GetHint(r.Context(), userID(r), chi.URLParam(r, "riddleID"), n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, hint)
}

// GetStats returns the caller's solve statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.riddles.GetUserStats(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetAIHint generates a fresh hint for premium players
func (h *Handler) GetAIHint(w http.ResponseWriter, r *http.Request) {
	hint, err := h.riddles.GenerateAIHint(r.Context(), userID(r), chi.URLParam(r, "riddleID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, hint)
}

// GetVariation rewrites a riddle with the same answer
func (h *Handler) GetVariation(w http.ResponseWriter, r *http.Request) {
	variation, err := h.riddles.GenerateRiddleVariation(r.Context(), userID(r), chi.URLParam(r, "riddleID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, variation)
}

// ValidateAI grades a free-form answer with semantic matching
func (h *Handler) ValidateAI(w http.ResponseWriter, r *http.Request) {
	var req validateAIRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.riddles.ValidateAnswerWithAI(r.Context(), req.RiddleID, req.Answer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// GenerateAI creates and serves a new riddle
func (h *Handler) GenerateAI(w http.ResponseWriter, r *http.Request) {
	difficulty, err := parseDifficulty(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := r.URL.Query()

	riddle, err := h.riddles.GenerateAIRiddle(r.Context(), userID(r), difficulty, q.Get("category"), q.Get("customAnswer"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]any{"riddle": riddle})
}

// SaveCustom bookmarks a riddle the caller generated
func (h *Handler) SaveCustom(w http.ResponseWriter, r *http.Request) {
	var req saveCustomRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	saved, err := h.riddles.SaveCustomRiddle(r.Context(), userID(r), req.RiddleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, saved)
}

// SavedRiddles lists the caller's bookmarks
func (h *Handler) SavedRiddles(w http.ResponseWriter, r *http.Request) {
	saved, err := h.riddles.GetSavedRiddles(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if saved == nil {
		saved = []domain.SavedRiddle{}
	}
	h.writeSuccess(w, map[string]any{"savedRiddles": saved})
}
