// Package settings persists the form values a caller chose to remember
// between sessions. Generation API keys are never stored.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supaseed/supaseed/internal/seedgen"
)

var ErrNotFound = errors.New("settings: not found")

type SavedSettings struct {
	EndpointURL    string       `json:"endpoint_url"`
	AccessKey      string       `json:"access_key"`
	Prompt         string       `json:"prompt"`
	SaveEnabled    bool         `json:"save_enabled"`
	GenerationMode seedgen.Mode `json:"generation_mode"`
	Model          string       `json:"model"`
	// SystemPrompt is the custom override; empty means the built-in default.
	SystemPrompt string    `json:"system_prompt"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Store interface {
	Load(ctx context.Context, ownerID string) (SavedSettings, error)
	Save(ctx context.Context, ownerID string, in SavedSettings) (SavedSettings, error)
	Delete(ctx context.Context, ownerID string) error
}

// Normalize trims every field and fills in the default generation mode. The
// model is checked against models when it is non-empty.
func Normalize(in SavedSettings, models seedgen.ModelSet) (SavedSettings, error) {
	out := in
	out.EndpointURL = strings.TrimSpace(in.EndpointURL)
	out.AccessKey = strings.TrimSpace(in.AccessKey)
	out.Prompt = strings.TrimSpace(in.Prompt)
	out.Model = strings.TrimSpace(in.Model)
	if strings.TrimSpace(in.SystemPrompt) == "" {
		out.SystemPrompt = ""
	}

	mode, err := seedgen.ParseMode(string(in.GenerationMode))
	if err != nil {
		return SavedSettings{}, err
	}
	out.GenerationMode = mode

	if out.Model != "" {
		if _, err := models.Resolve(out.Model); err != nil {
			return SavedSettings{}, err
		}
	}
	return out, nil
}

// Apply normalizes in and stores it for ownerID. With SaveEnabled unset any
// previously stored value is removed and nothing new is persisted.
func Apply(ctx context.Context, store Store, models seedgen.ModelSet, ownerID string, in SavedSettings) (SavedSettings, bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		return SavedSettings{}, false, fmt.Errorf("%w: owner id is required", seedgen.ErrInvalidInput)
	}
	normalized, err := Normalize(in, models)
	if err != nil {
		return SavedSettings{}, false, err
	}
	if !normalized.SaveEnabled {
		if err := store.Delete(ctx, ownerID); err != nil && !errors.Is(err, ErrNotFound) {
			return SavedSettings{}, false, err
		}
		return normalized, false, nil
	}
	saved, err := store.Save(ctx, ownerID, normalized)
	if err != nil {
		return SavedSettings{}, false, err
	}
	return saved, true, nil
}
