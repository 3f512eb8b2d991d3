package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/riddle-backend/internal/domain"
)

// SubscriptionStatus returns the caller's reconciled subscription view
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.subscriptions.GetStatus(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, status)
}

// SyncSubscription pulls the provider's view right after a purchase
func (h *Handler) SyncSubscription(w http.ResponseWriter, r *http.Request) {
	status, err := h.subscriptions.Sync(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, status)
}

// Checkout opens a hosted purchase page. The body is optional.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if r.ContentLength > 0 {
		if err := h.decode(w, r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}

	session, err := h.subscriptions.CreateCheckout(r.Context(), userID(r), req.PriceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, session)
}

// Portal opens the provider's self-service billing page
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	session, err := h.subscriptions.CreatePortal(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, session)
}

// Offerings lists the purchasable products
func (h *Handler) Offerings(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"message":  "Use the billing SDK in your app to display offerings",
		"provider": h.subscriptions.Provider(),
		"products": h.subscriptions.Offerings(),
	})
}

// Webhook receives provider events. The raw body is kept for signature checks.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, domain.NewAppError(http.StatusRequestEntityTooLarge, "Request body too large", err))
			return
		}
		h.writeError(w, domain.BadRequest("Invalid webhook payload"))
		return
	}

	outcomes, err := h.subscriptions.HandleWebhook(r.Context(), r.Header, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}

	applied := 0
	for _, o := range outcomes {
		if o.Applied {
			applied++
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"received": true, "applied": applied})
}
