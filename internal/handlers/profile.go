package handlers

import (
	"errors"
	"net/http"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/profiles"
)

const (
	defaultMaxIconBytes = 50 << 20
	// multipartOverhead covers form fields and part headers around the file.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

type registerRequest struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	Name         *string  `json:"name,omitempty"`
	Affiliation  *string  `json:"affiliation,omitempty"`
	IconURL      *string  `json:"icon_url,omitempty"`
	SocialLinks  []string `json:"social_links,omitempty"`
}

type loginRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

type updateRequest struct {
	ID           string   `json:"id"`
	PasswordHash string   `json:"password_hash"`
	Name         *string  `json:"name,omitempty"`
	Affiliation  *string  `json:"affiliation,omitempty"`
	SocialLinks  []string `json:"social_links,omitempty"`
}

type identityResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type iconResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	IconURL string `json:"icon_url"`
}

// ProfileHandler implements registration, login and profile edits.
type ProfileHandler struct {
	Profiles     ProfileService
	MaxIconBytes int64
}

// Register handles POST /api/register.
func (h ProfileHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Profiles == nil {
		unavailable(ctx, w, "profile service")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.Register(ctx, profiles.Registration{
		Username:     req.Username,
		PasswordHash: req.PasswordHash,
		Name:         req.Name,
		Affiliation:  req.Affiliation,
		IconURL:      req.IconURL,
		SocialLinks:  req.SocialLinks,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, identityResponse{
		Success:  true,
		Message:  "registered",
		ID:       profile.ID,
		Username: profile.Username,
	})
}

// Login handles POST /api/login.
func (h ProfileHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Profiles == nil {
		unavailable(ctx, w, "profile service")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.Login(ctx, req.Username, req.PasswordHash)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, identityResponse{
		Success:  true,
		Message:  "logged in",
		ID:       profile.ID,
		Username: profile.Username,
	})
}

// Update handles POST /api/profile. username and friends cannot be changed
// here and are rejected as unknown fields.
func (h ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Profiles == nil {
		unavailable(ctx, w, "profile service")
		return
	}

	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	profile, err := h.Profiles.Update(ctx, profiles.Changes{
		ID:           req.ID,
		PasswordHash: req.PasswordHash,
		Name:         req.Name,
		Affiliation:  req.Affiliation,
		SocialLinks:  req.SocialLinks,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, identityResponse{
		Success:  true,
		Message:  "profile updated",
		ID:       profile.ID,
		Username: profile.Username,
	})
}

// UploadIcon handles multipart POST /api/icon with fields id, password_hash
// and the image file under icon.
func (h ProfileHandler) UploadIcon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	if h.Profiles == nil {
		unavailable(ctx, w, "profile service")
		return
	}

	maxBytes := h.MaxIconBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxIconBytes
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, apperr.Wrap(apperr.CodeMalformed, "icon is too large", err))
			return
		}
		respondError(ctx, w, apperr.Wrap(apperr.CodeMalformed, "invalid multipart body", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("icon")
	if err != nil {
		respondError(ctx, w, apperr.Wrap(apperr.CodeMalformed, "icon file is required", err))
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		respondError(ctx, w, apperr.Malformed("icon is too large"))
		return
	}

	url, err := h.Profiles.UploadIcon(ctx, r.FormValue("id"), r.FormValue("password_hash"), file)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, iconResponse{Success: true, Message: "icon updated", IconURL: url})
}
