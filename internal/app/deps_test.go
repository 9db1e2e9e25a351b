package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meishi/backend/internal/config"
	"github.com/meishi/backend/internal/storage"
)

func testConfig() config.Config {
	return config.Config{
		HTTPAddr: ":0",
		Store:    config.StoreMemory,
		Exchange: config.ExchangeConfig{TokenTTL: 5 * time.Minute, TokenLength: 28, MaxAttempts: 5},
		RateLimit: config.RateLimitConfig{
			Requests: 100, Window: time.Minute, Burst: 100, TTL: time.Minute,
		},
		ObjectStore: config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
		Icon:        config.IconConfig{Size: 64, MaxBytes: 1 << 20},
	}
}

func TestBuildDependencies(t *testing.T) {
	cfg := testConfig()
	st, err := openStores(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	defer st.close()

	icons, err := openIconStorage(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open icon storage: %v", err)
	}
	if _, ok := icons.(*storage.MemoryStorage); !ok {
		t.Fatalf("expected memory icon storage, got %T", icons)
	}

	deps := buildDependencies(cfg, st, icons)

	if deps.Profiles == nil {
		t.Fatal("expected profile service to be configured")
	}
	if deps.Tokens == nil {
		t.Fatal("expected token issuer to be configured")
	}
	if deps.Exchange == nil {
		t.Fatal("expected exchange engine to be configured")
	}
	if deps.Friends == nil {
		t.Fatal("expected friend viewer to be configured")
	}
	if deps.RateLimiter == nil {
		t.Fatal("expected rate limiter to be configured")
	}
	if deps.MaxIconBytes != cfg.Icon.MaxBytes {
		t.Fatalf("expected max icon bytes %d, got %d", cfg.Icon.MaxBytes, deps.MaxIconBytes)
	}
}

func TestS3IconStorageForPostgresStore(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg := testConfig()
	cfg.Store = config.StorePostgres

	icons, err := openIconStorage(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open icon storage: %v", err)
	}
	if _, ok := icons.(*storage.S3Storage); !ok {
		t.Fatalf("expected s3 icon storage, got %T", icons)
	}
}

func TestHandlerServesRegistrationOverMemoryStore(t *testing.T) {
	cfg := testConfig()
	st := memoryStores()
	deps := buildDependencies(cfg, st, storage.NewMemoryStorage(memoryIconBaseURL))

	var logs bytes.Buffer
	handler := newHandler(deps, newLogger(&logs, cfg))

	body := strings.NewReader(`{"username":"alice","password_hash":"h"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/register", body)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatal("expected request id to be echoed")
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["username"] != "alice" {
		t.Fatalf("unexpected response %v", resp)
	}
	if !strings.Contains(logs.String(), `"request_id":"req-1"`) {
		t.Fatalf("expected request id in logs, got %s", logs.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy memory store, got %d", rec.Code)
	}
}

func TestRunRejectsUnknownCommands(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without a command")
	}
	if err := Run(context.Background(), []string{"frobnicate"}); err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestMigrateAndSeedRequirePostgres(t *testing.T) {
	cfg := testConfig()

	if err := runMigrations(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected migrate to refuse the memory store")
	}
	if err := runSeed(context.Background(), cfg, []string{"dev"}); err == nil {
		t.Fatal("expected seed to refuse the memory store")
	}
	if err := runSeed(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected seed to require a name")
	}
}

func TestResolveSeedPath(t *testing.T) {
	got, err := resolveSeedPath("/srv/seeds", "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join("/srv/seeds", "dev_seed.sql") {
		t.Fatalf("unexpected path %s", got)
	}

	got, err = resolveSeedPath("/srv/seeds", "custom.sql")
	if err != nil || got != filepath.Join("/srv/seeds", "custom.sql") {
		t.Fatalf("unexpected path %s (%v)", got, err)
	}

	if _, err := resolveSeedPath("/srv/seeds", "../etc/passwd"); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

