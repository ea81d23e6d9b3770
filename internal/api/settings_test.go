package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/supaseed/supaseed/internal/settings"
)

func settingsRequest(t *testing.T, h http.Handler, method string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/v1/settings", &body)
	req.Header.Set("X-Client-ID", "client-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPutSettingsPersistsWhenSaveEnabled(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	store := settings.NewMemoryStore()
	h := NewHandler(cfg, Dependencies{Settings: store})

	rr := settingsRequest(t, h, http.MethodPut, map[string]any{
		"endpoint_url":    " https://project.supabase.co ",
		"access_key":      "anon",
		"prompt":          "ten users",
		"save_enabled":    true,
		"generation_mode": "direct",
		"model":           "gpt-4o",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body putSettingsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Persisted || body.Settings.EndpointURL != "https://project.supabase.co" {
		t.Fatalf("body = %+v", body)
	}

	stored, err := store.Load(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if stored.Model != "gpt-4o" || stored.GenerationMode != "direct" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestPutSettingsWithSaveDisabledClearsStoredValue(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	store := settings.NewMemoryStore()
	if _, err := store.Save(context.Background(), "client-1", settings.SavedSettings{Prompt: "old", SaveEnabled: true}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	h := NewHandler(cfg, Dependencies{Settings: store})

	rr := settingsRequest(t, h, http.MethodPut, map[string]any{"prompt": "new", "save_enabled": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body putSettingsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Persisted {
		t.Fatal("expected persisted=false")
	}
	if _, err := store.Load(context.Background(), "client-1"); !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestPutSettingsRejectsInvalidMode(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	h := NewHandler(cfg, Dependencies{Settings: settings.NewMemoryStore()})

	rr := settingsRequest(t, h, http.MethodPut, map[string]any{"save_enabled": true, "generation_mode": "batch"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGetAndDeleteSettings(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	store := settings.NewMemoryStore()
	h := NewHandler(cfg, Dependencies{Settings: store})

	if rr := settingsRequest(t, h, http.MethodGet, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("GET missing status = %d", rr.Code)
	}
	if _, err := store.Save(context.Background(), "client-1", settings.SavedSettings{Prompt: "p", SaveEnabled: true}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rr := settingsRequest(t, h, http.MethodDelete, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rr.Code)
	}
	if rr := settingsRequest(t, h, http.MethodDelete, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d", rr.Code)
	}
}

func TestSettingsReturn501WhenUnconfigured(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	h := NewHandler(cfg, Dependencies{})

	rr := settingsRequest(t, h, http.MethodGet, nil)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "SETTINGS_NOT_CONFIGURED" {
		t.Fatalf("body = %#v", body)
	}
}
