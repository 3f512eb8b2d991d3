package handler

import (
	"net/http"
)

// Register handles account creation
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCreated(w, result)
}

// Login handles credential exchange for a token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// Profile returns the caller's account
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetProfile(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]any{"user": user})
}

// ForgotPassword issues a reset token without revealing whether the email exists
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	message, err := h.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"message": message})
}

// ResetPassword consumes a reset token
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"message": "Password has been reset successfully"})
}
