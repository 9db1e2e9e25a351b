package handlers

import (
	"net/http"
)

type credentialsRequest struct {
	ID           string `json:"id"`
	PasswordHash string `json:"password_hash"`
}

type qrResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	QR      string `json:"qr"`
}

// QRHandler hands out exchange tokens.
type QRHandler struct {
	Tokens TokenIssuer
}

// Issue handles POST /api/qr.
func (h QRHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Tokens == nil {
		unavailable(ctx, w, "qr service")
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	token, err := h.Tokens.IssueOrRotate(ctx, req.ID, req.PasswordHash)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, qrResponse{Success: true, Message: "qr issued", QR: token})
}
