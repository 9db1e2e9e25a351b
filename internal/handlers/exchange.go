package handlers

import (
	"net/http"

	"github.com/meishi/backend/internal/auth"
	"github.com/meishi/backend/internal/exchange"
	"github.com/meishi/backend/internal/models"
)

type exchangeRequest struct {
	QR           string `json:"qr"`
	ID           string `json:"id,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

type exchangeResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	ID       *string          `json:"id"`
	Username *string          `json:"username"`
	New      models.FriendRef `json:"new"`
}

// ExchangeHandler redeems scanned QR tokens.
type ExchangeHandler struct {
	Engine Exchanger
}

// Exchange handles POST /api/exchange. Without id and password_hash the
// token owner is only looked up.
func (h ExchangeHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Engine == nil {
		unavailable(ctx, w, "exchange service")
		return
	}

	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	in := exchange.Request{Token: req.QR}
	if req.ID != "" || req.PasswordHash != "" {
		in.Requester = &auth.Credentials{ID: req.ID, PasswordHash: req.PasswordHash}
	}

	res, err := h.Engine.Exchange(ctx, in)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	message := "friend added"
	if in.Requester == nil {
		message = "qr owner found"
	}

	respondJSON(ctx, w, http.StatusOK, exchangeResponse{
		Success:  true,
		Message:  message,
		ID:       res.RequesterID,
		Username: res.RequesterUsername,
		New:      res.Counterpart,
	})
}
