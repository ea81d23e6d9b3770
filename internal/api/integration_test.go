//go:build integration

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/supaseed/supaseed/internal/archive"
	"github.com/supaseed/supaseed/internal/config"
	"github.com/supaseed/supaseed/internal/migrations"
	settingspostgres "github.com/supaseed/supaseed/internal/settings/postgres"
	s3store "github.com/supaseed/supaseed/internal/storage/s3"
)

func TestSettingsRoundTripWithPostgres(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("SUPASEED_TEST_SETTINGS_DSN"))
	if adminDSN == "" {
		t.Skip("SUPASEED_TEST_SETTINGS_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}

	cfg, err := config.Load("supaseed-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Settings: settingspostgres.NewRepository(db)})

	put := doJSON(t, h, http.MethodPut, "/v1/settings", "client-it", map[string]any{
		"endpoint_url":    "https://project.supabase.co",
		"access_key":      "anon",
		"prompt":          "ten users",
		"save_enabled":    true,
		"generation_mode": "direct",
	})
	if put.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body=%s", put.Code, put.Body.String())
	}

	get := doJSON(t, h, http.MethodGet, "/v1/settings", "client-it", nil)
	if get.Code != http.StatusOK {
		t.Fatalf("GET status = %d, body=%s", get.Code, get.Body.String())
	}
	var saved map[string]any
	if err := json.Unmarshal(get.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if saved["prompt"] != "ten users" || saved["generation_mode"] != "direct" {
		t.Fatalf("saved settings = %#v", saved)
	}

	if del := doJSON(t, h, http.MethodDelete, "/v1/settings", "client-it", nil); del.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", del.Code)
	}
	if missing := doJSON(t, h, http.MethodGet, "/v1/settings", "client-it", nil); missing.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d", missing.Code)
	}
}

func TestSeedArchiveWithMinIO(t *testing.T) {
	endpoint := strings.TrimSpace(os.Getenv("SUPASEED_TEST_S3_ENDPOINT"))
	if endpoint == "" {
		t.Skip("SUPASEED_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         endpoint,
		Region:           envOr("SUPASEED_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("SUPASEED_TEST_S3_BUCKET", "supaseed-it"),
		AccessKeyID:      envOr("SUPASEED_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("SUPASEED_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           fmt.Sprintf("api-it-%d", time.Now().UnixNano()),
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("s3store.New() error = %v", err)
	}
	seeds := archive.New(store, nil)
	seed, err := seeds.Save(ctx, "client-it", "```sql\nSELECT 1;\n```")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cfg, err := config.Load("supaseed-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Archive: seeds})

	get := doJSON(t, h, http.MethodGet, "/v1/seeds/"+seed.ID, "client-it", nil)
	if get.Code != http.StatusOK || get.Body.String() != "SELECT 1;" {
		t.Fatalf("GET seed status = %d, body=%q", get.Code, get.Body.String())
	}
	if other := doJSON(t, h, http.MethodGet, "/v1/seeds/"+seed.ID, "client-other", nil); other.Code != http.StatusNotFound {
		t.Fatalf("GET seed as other client status = %d", other.Code)
	}
	if del := doJSON(t, h, http.MethodDelete, "/v1/seeds/"+seed.ID, "client-it", nil); del.Code != http.StatusNoContent {
		t.Fatalf("DELETE seed status = %d", del.Code)
	}
}

func doJSON(t *testing.T, handler http.Handler, method, target, clientID string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("X-Client-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	if strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("supaseed_it_api_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name
	testDSN := testURL.String()

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testDSN, cleanup
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
