package handlers

import (
	"net/http"

	"github.com/meishi/backend/internal/auth"
	"github.com/meishi/backend/internal/models"
)

type accountResponse struct {
	Success        bool                `json:"success"`
	Message        string              `json:"message"`
	ID             string              `json:"id"`
	Username       string              `json:"username"`
	Name           *string             `json:"name"`
	Affiliation    *string             `json:"affiliation"`
	IconURL        *string             `json:"icon_url"`
	SocialLinks    []string            `json:"social_links"`
	Friends        []models.FriendRef  `json:"friends"`
	FriendsFriends map[string][]string `json:"friends_friends"`
}

type userResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	ID          string              `json:"id"`
	Username    string              `json:"username"`
	Name        *string             `json:"name"`
	Affiliation *string             `json:"affiliation"`
	IconURL     *string             `json:"icon_url"`
	SocialLinks []string            `json:"social_links"`
	Friends     *[]models.FriendRef `json:"friends,omitempty"`
}

// AccountHandler serves the account and public profile views.
type AccountHandler struct {
	Friends FriendViewer
}

// Self handles /api/account. Credentials come from the query string on GET
// and from a JSON body on POST.
func (h AccountHandler) Self(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialsRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req = credentialsRequest{ID: q.Get("id"), PasswordHash: q.Get("password_hash")}
	case http.MethodPost:
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(ctx, w, err)
			return
		}
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	if h.Friends == nil {
		unavailable(ctx, w, "account service")
		return
	}

	acct, err := h.Friends.SelfView(ctx, req.ID, req.PasswordHash)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	p := acct.Profile
	respondJSON(ctx, w, http.StatusOK, accountResponse{
		Success:        true,
		Message:        "account loaded",
		ID:             p.ID,
		Username:       p.Username,
		Name:           p.Name,
		Affiliation:    p.Affiliation,
		IconURL:        p.IconURL,
		SocialLinks:    nonNil(p.SocialLinks),
		Friends:        nonNil(p.Friends),
		FriendsFriends: acct.FriendsOfFriends,
	})
}

// User handles GET /api/user?target=...[&id=...&password_hash=...].
func (h AccountHandler) User(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	if h.Friends == nil {
		unavailable(ctx, w, "user service")
		return
	}

	q := r.URL.Query()
	var requester *auth.Credentials
	if q.Get("id") != "" || q.Get("password_hash") != "" {
		requester = &auth.Credentials{ID: q.Get("id"), PasswordHash: q.Get("password_hash")}
	}

	view, err := h.Friends.PublicView(ctx, q.Get("target"), requester)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	resp := userResponse{
		Success:     true,
		Message:     "user loaded",
		ID:          view.ID,
		Username:    view.Username,
		Name:        view.Name,
		Affiliation: view.Affiliation,
		IconURL:     view.IconURL,
		SocialLinks: nonNil(view.SocialLinks),
	}
	if view.Friends != nil {
		list := nonNil(*view.Friends)
		resp.Friends = &list
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
