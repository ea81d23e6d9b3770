package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/supaseed/supaseed/internal/auth"
	"github.com/supaseed/supaseed/internal/observability"
	"github.com/supaseed/supaseed/internal/seedgen"
	"github.com/supaseed/supaseed/internal/settings"
	"github.com/supaseed/supaseed/internal/sse"
)

type seedRequest struct {
	EndpointURL  string `json:"endpoint_url"`
	AccessKey    string `json:"access_key"`
	Prompt       string `json:"prompt"`
	OpenAIKey    string `json:"openai_key"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	// UseSavedSettings fills blank fields from the caller's saved settings.
	UseSavedSettings bool `json:"use_saved_settings"`
}

func (req seedRequest) input() seedgen.Input {
	return seedgen.Input{
		EndpointURL:  req.EndpointURL,
		AccessKey:    req.AccessKey,
		UserText:     req.Prompt,
		APIKey:       req.OpenAIKey,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	}
}

type promptResponse struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Output       string `json:"output"`
}

func handleSeedPrompt(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	in, ok := prepareSeedInput(deps, w, r)
	if !ok {
		return
	}
	result, err := deps.Seeds.Prompt(r.Context(), in)
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{
		SystemPrompt: result.Pair.SystemPrompt,
		UserPrompt:   result.Pair.UserPrompt,
		Output:       result.Output,
	})
}

// handleSeedGenerate streams a completion as server-sent events. Errors found
// before the first byte is written are returned as JSON.
func handleSeedGenerate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	in, ok := prepareSeedInput(deps, w, r)
	if !ok {
		return
	}
	ownerID, err := clientFromRequest(r)
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var phases []seedgen.Phase
	fragments, err := deps.Seeds.Generate(ctx, in, func(phase seedgen.Phase) {
		phases = append(phases, phase)
	})
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}

	model, _ := deps.Seeds.Models().Resolve(in.Model)
	sse.Prepare(w)
	w.WriteHeader(http.StatusOK)
	stream := sse.NewWriter(w)
	for _, phase := range phases {
		if err := stream.WriteEvent(sse.EventStatus, sse.StatusPayload{Phase: string(phase)}); err != nil {
			return
		}
	}

	var text strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			logStreamFailure(deps, r, fragment.Err)
			_ = stream.WriteEvent(sse.EventStatus, sse.StatusPayload{Phase: string(seedgen.PhaseFailed)})
			_ = stream.WriteEvent(sse.EventError, sse.ErrorPayload{
				ErrorCode: "GENERATION_FAILED",
				Message:   seedgen.UserMessage(fragment.Err),
			})
			return
		}
		text.WriteString(fragment.Text)
		if err := stream.WriteEvent(sse.EventFragment, sse.FragmentPayload{Text: fragment.Text}); err != nil {
			// client went away; cancel stops the producer
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	done := sse.DonePayload{Model: model.ID}
	if deps.Archive != nil && text.Len() > 0 {
		seed, err := deps.Archive.Save(ctx, ownerID, text.String())
		if err != nil {
			logStreamFailure(deps, r, err)
		} else {
			done.ArchiveKey = seed.Key
			done.SeedID = seed.ID
		}
	}
	_ = stream.WriteEvent(sse.EventStatus, sse.StatusPayload{Phase: string(seedgen.PhaseDone)})
	_ = stream.WriteEvent(sse.EventDone, done)
}

func prepareSeedInput(deps Dependencies, w http.ResponseWriter, r *http.Request) (seedgen.Input, bool) {
	if deps.Seeds == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SEEDS_NOT_CONFIGURED", "seed generation is not configured", false, nil)
		return seedgen.Input{}, false
	}
	if err := auth.RequireAnyRole(r.Context(), auth.RoleSeedWriter); err != nil {
		writeDomainError(deps, r, w, err)
		return seedgen.Input{}, false
	}

	var req seedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid seed request body", false, map[string]any{"details": err.Error()})
		return seedgen.Input{}, false
	}
	if req.UseSavedSettings && deps.Settings != nil {
		ownerID, err := clientFromRequest(r)
		if err != nil {
			writeDomainError(deps, r, w, err)
			return seedgen.Input{}, false
		}
		saved, err := deps.Settings.Load(r.Context(), ownerID)
		switch {
		case err == nil:
			req = mergeSaved(req, saved)
		case errors.Is(err, settings.ErrNotFound):
		default:
			writeDomainError(deps, r, w, err)
			return seedgen.Input{}, false
		}
	}
	return req.input(), true
}

func mergeSaved(req seedRequest, saved settings.SavedSettings) seedRequest {
	if strings.TrimSpace(req.EndpointURL) == "" {
		req.EndpointURL = saved.EndpointURL
	}
	if strings.TrimSpace(req.AccessKey) == "" {
		req.AccessKey = saved.AccessKey
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = saved.Prompt
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = saved.Model
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		req.SystemPrompt = saved.SystemPrompt
	}
	return req
}

func logStreamFailure(deps Dependencies, r *http.Request, err error) {
	if deps.Logger == nil {
		return
	}
	deps.Logger.WarnContext(r.Context(), "seed_stream_failed",
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
}
