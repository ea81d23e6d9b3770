// Package seedgen turns a Supabase schema and a natural-language request into
// seed SQL prompts, and optionally streams a completion for them.
package seedgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supaseed/supaseed/internal/schema"
)

type Mode string

const (
	ModePrompt Mode = "prompt"
	ModeDirect Mode = "direct"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModePrompt:
		return ModePrompt, nil
	case ModeDirect:
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("%w: unsupported generation mode %q", ErrInvalidInput, raw)
	}
}

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseFetchingSchema Phase = "fetching_schema"
	PhaseComposing      Phase = "composing"
	PhaseStreaming      Phase = "streaming"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

// PhaseObserver is called synchronously on the calling goroutine. Terminal
// phases of a direct-mode run are signalled by the fragment channel instead.
type PhaseObserver func(Phase)

type SchemaFetcher interface {
	Fetch(ctx context.Context, endpointURL, accessKey string) (schema.Description, error)
}

type Input struct {
	EndpointURL  string
	AccessKey    string
	UserText     string
	APIKey       string
	Model        string
	SystemPrompt string
}

type PromptResult struct {
	Pair   PromptPair
	Output string
}

type Service struct {
	fetcher  SchemaFetcher
	streamer *Streamer
	logger   *slog.Logger
}

func NewService(fetcher SchemaFetcher, streamer *Streamer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{fetcher: fetcher, streamer: streamer, logger: logger}
}

func (s *Service) Models() ModelSet {
	return s.streamer.Models()
}

// Prompt fetches the schema and returns the composed prompts without calling
// a model.
func (s *Service) Prompt(ctx context.Context, in Input) (PromptResult, error) {
	if err := s.validate(in, ModePrompt); err != nil {
		return PromptResult{}, err
	}
	description, err := s.fetchSchema(ctx, in, nil)
	if err != nil {
		return PromptResult{}, err
	}
	pair := ComposePrompts(description, in.UserText, in.SystemPrompt)
	return PromptResult{Pair: pair, Output: FormatPromptOutput(pair)}, nil
}

// Generate fetches the schema and starts a streamed completion. Errors before
// the stream opens are returned directly; later failures arrive on the channel.
func (s *Service) Generate(ctx context.Context, in Input, observe PhaseObserver) (<-chan Fragment, error) {
	if err := s.validate(in, ModeDirect); err != nil {
		return nil, err
	}
	description, err := s.fetchSchema(ctx, in, observe)
	if err != nil {
		notify(observe, PhaseFailed)
		return nil, err
	}
	notify(observe, PhaseComposing)
	fragments, err := s.streamer.Stream(ctx, StreamRequest{
		Schema:       description,
		UserText:     in.UserText,
		SystemPrompt: in.SystemPrompt,
		APIKey:       in.APIKey,
		Model:        in.Model,
	})
	if err != nil {
		notify(observe, PhaseFailed)
		return nil, err
	}
	notify(observe, PhaseStreaming)
	return fragments, nil
}

func (s *Service) fetchSchema(ctx context.Context, in Input, observe PhaseObserver) (schema.Description, error) {
	notify(observe, PhaseFetchingSchema)
	description, err := s.fetcher.Fetch(ctx, strings.TrimSpace(in.EndpointURL), strings.TrimSpace(in.AccessKey))
	if err != nil {
		s.logger.WarnContext(ctx, "schema_fetch_failed", slog.String("error", err.Error()))
		return "", err
	}
	s.logger.DebugContext(ctx, "schema_fetched", slog.Int("bytes", len(description)))
	return description, nil
}

func (s *Service) validate(in Input, mode Mode) error {
	if strings.TrimSpace(in.EndpointURL) == "" || strings.TrimSpace(in.AccessKey) == "" || strings.TrimSpace(in.UserText) == "" {
		return fmt.Errorf("%w: endpoint url, access key, and prompt are required", ErrInvalidInput)
	}
	if err := schema.ValidateEndpoint(in.EndpointURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if mode != ModeDirect {
		return nil
	}
	if strings.TrimSpace(in.APIKey) == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidInput)
	}
	if _, err := s.streamer.Models().Resolve(in.Model); err != nil {
		return err
	}
	return nil
}

func notify(observe PhaseObserver, phase Phase) {
	if observe != nil {
		observe(phase)
	}
}
