package handlers

import (
	"context"
	"net/http"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Profiles     ProfileService
	Tokens       TokenIssuer
	Exchange     Exchanger
	Friends      FriendViewer
	RateLimiter  RateLimiter
	HealthCheck  func(ctx context.Context) error
	MaxIconBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Check: deps.HealthCheck}
	profile := ProfileHandler{Profiles: deps.Profiles, MaxIconBytes: deps.MaxIconBytes}
	qr := QRHandler{Tokens: deps.Tokens}
	exchange := ExchangeHandler{Engine: deps.Exchange}
	account := AccountHandler{Friends: deps.Friends}
	limit := deps.RateLimiter

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/register", rateLimited(limit, "register", profile.Register))
	mux.HandleFunc("/api/login", rateLimited(limit, "login", profile.Login))
	mux.HandleFunc("/api/qr", rateLimited(limit, "qr", qr.Issue))
	mux.HandleFunc("/api/exchange", rateLimited(limit, "exchange", exchange.Exchange))
	mux.HandleFunc("/api/account", account.Self)
	mux.HandleFunc("/api/user", account.User)
	mux.HandleFunc("/api/profile", profile.Update)
	mux.HandleFunc("/api/icon", rateLimited(limit, "icon", profile.UploadIcon))
}
