// Package client is a small HTTP client for the meishi API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Credentials identify the calling profile.
type Credentials struct {
	ID           string `json:"id"`
	PasswordHash string `json:"password_hash"`
}

// FriendRef is one entry of a friend list.
type FriendRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Identity is returned by register and login.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Profile is the public view of a profile. Friends is nil unless the caller
// is on the profile's friend list.
type Profile struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	Name        *string      `json:"name"`
	Affiliation *string      `json:"affiliation"`
	IconURL     *string      `json:"icon_url"`
	SocialLinks []string     `json:"social_links"`
	Friends     *[]FriendRef `json:"friends,omitempty"`
}

// Account is the caller's own view.
type Account struct {
	ID             string              `json:"id"`
	Username       string              `json:"username"`
	Name           *string             `json:"name"`
	Affiliation    *string             `json:"affiliation"`
	IconURL        *string             `json:"icon_url"`
	SocialLinks    []string            `json:"social_links"`
	Friends        []FriendRef         `json:"friends"`
	FriendsFriends map[string][]string `json:"friends_friends"`
}

// ExchangeResult describes a redeemed token. RequesterID is nil in view mode.
type ExchangeResult struct {
	RequesterID       *string   `json:"id"`
	RequesterUsername *string   `json:"username"`
	New               FriendRef `json:"new"`
}

// Registration carries the optional display fields of a new profile.
type Registration struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	Name         *string  `json:"name,omitempty"`
	Affiliation  *string  `json:"affiliation,omitempty"`
	SocialLinks  []string `json:"social_links,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("meishi api: status %d", e.Status)
	}
	return fmt.Sprintf("meishi api: %s: %s", e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client talks to one meishi server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient gets a default with a
// request timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Register creates a profile.
func (c *Client) Register(ctx context.Context, reg Registration) (Identity, error) {
	var out Identity
	err := c.post(ctx, "/api/register", reg, &out)
	return out, err
}

// Login resolves a username and hash to an identity.
func (c *Client) Login(ctx context.Context, username, hash string) (Identity, error) {
	var out Identity
	err := c.post(ctx, "/api/login", map[string]string{"username": username, "password_hash": hash}, &out)
	return out, err
}

// IssueQR returns the caller's current QR token, rotating it if stale.
func (c *Client) IssueQR(ctx context.Context, creds Credentials) (string, error) {
	var out struct {
		QR string `json:"qr"`
	}
	if err := c.post(ctx, "/api/qr", creds, &out); err != nil {
		return "", err
	}
	return out.QR, nil
}

// Exchange redeems a scanned token. A nil creds previews the owner without
// linking.
func (c *Client) Exchange(ctx context.Context, token string, creds *Credentials) (ExchangeResult, error) {
	body := map[string]string{"qr": token}
	if creds != nil {
		body["id"] = creds.ID
		body["password_hash"] = creds.PasswordHash
	}
	var out ExchangeResult
	err := c.post(ctx, "/api/exchange", body, &out)
	return out, err
}

// Account returns the caller's own view with friends of friends.
func (c *Client) Account(ctx context.Context, creds Credentials) (Account, error) {
	var out Account
	err := c.post(ctx, "/api/account", creds, &out)
	return out, err
}

// User returns the public view of target. With creds the friend list is
// included when the caller is one of target's friends.
func (c *Client) User(ctx context.Context, target string, creds *Credentials) (Profile, error) {
	q := url.Values{"target": {target}}
	if creds != nil {
		q.Set("id", creds.ID)
		q.Set("password_hash", creds.PasswordHash)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user?"+q.Encode(), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build request: %w", err)
	}
	var out Profile
	err = c.do(req, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
