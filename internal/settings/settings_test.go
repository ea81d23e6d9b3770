package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/supaseed/supaseed/internal/seedgen"
)

func TestNormalizeDefaultsAndTrims(t *testing.T) {
	got, err := Normalize(SavedSettings{
		EndpointURL:  "  https://abc.supabase.co ",
		AccessKey:    " anon ",
		Prompt:       " 10 todos ",
		SystemPrompt: "  \n ",
	}, seedgen.DefaultModels())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.EndpointURL != "https://abc.supabase.co" || got.AccessKey != "anon" || got.Prompt != "10 todos" {
		t.Fatalf("Normalize() = %#v", got)
	}
	if got.GenerationMode != seedgen.ModePrompt {
		t.Fatalf("GenerationMode = %q", got.GenerationMode)
	}
	if got.SystemPrompt != "" {
		t.Fatalf("blank system prompt should reset to default, got %q", got.SystemPrompt)
	}
}

func TestNormalizeRejectsUnknownModeAndModel(t *testing.T) {
	if _, err := Normalize(SavedSettings{GenerationMode: "batch"}, seedgen.DefaultModels()); !errors.Is(err, seedgen.ErrInvalidInput) {
		t.Fatalf("Normalize(mode) error = %v", err)
	}
	if _, err := Normalize(SavedSettings{Model: "gpt-99"}, seedgen.DefaultModels()); !errors.Is(err, seedgen.ErrInvalidInput) {
		t.Fatalf("Normalize(model) error = %v", err)
	}
}

func TestApplyPersistsOnlyWhenSaveEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	models := seedgen.DefaultModels()

	saved, persisted, err := Apply(ctx, store, models, "client-1", SavedSettings{
		EndpointURL:    "https://abc.supabase.co",
		SaveEnabled:    true,
		GenerationMode: seedgen.ModeDirect,
		Model:          "gpt-4o",
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !persisted || saved.UpdatedAt.IsZero() {
		t.Fatalf("Apply() persisted=%v saved=%#v", persisted, saved)
	}
	loaded, err := store.Load(ctx, "client-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Model != "gpt-4o" || loaded.GenerationMode != seedgen.ModeDirect {
		t.Fatalf("Load() = %#v", loaded)
	}

	_, persisted, err = Apply(ctx, store, models, "client-1", SavedSettings{EndpointURL: "https://other.supabase.co"})
	if err != nil {
		t.Fatalf("Apply(disabled) error = %v", err)
	}
	if persisted {
		t.Fatalf("expected nothing persisted when save is disabled")
	}
	if _, err := store.Load(ctx, "client-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() after disable error = %v, want ErrNotFound", err)
	}
}

func TestApplyRequiresOwner(t *testing.T) {
	_, _, err := Apply(context.Background(), NewMemoryStore(), seedgen.DefaultModels(), " ", SavedSettings{SaveEnabled: true})
	if !errors.Is(err, seedgen.ErrInvalidInput) {
		t.Fatalf("Apply() error = %v", err)
	}
}

func TestMemoryStoreIsolatesOwners(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Save(ctx, "a", SavedSettings{Prompt: "for a"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Load(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(b) error = %v", err)
	}
	if err := store.Delete(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(b) error = %v", err)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete(a) error = %v", err)
	}
}
