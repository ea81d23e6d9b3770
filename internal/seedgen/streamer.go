package seedgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/supaseed/supaseed/internal/observability"
	"github.com/supaseed/supaseed/internal/schema"
)

// Fragment is one piece of generated text. A Fragment with a non-nil Err is
// the last value sent before the channel closes.
type Fragment struct {
	Text string
	Err  error
}

type StreamRequest struct {
	Schema       schema.Description
	UserText     string
	SystemPrompt string
	APIKey       string
	Model        string
}

type Streamer struct {
	provider Provider
	models   ModelSet
	logger   *slog.Logger
}

func NewStreamer(provider Provider, models ModelSet, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{provider: provider, models: models, logger: logger}
}

func (s *Streamer) Models() ModelSet {
	return s.models
}

// Stream starts one completion and returns an unbuffered channel of
// fragments. The channel is closed on completion. On failure exactly one
// Fragment carrying ErrGenerationFailed is sent before the close. Cancelling
// ctx stops the producer.
func (s *Streamer) Stream(ctx context.Context, req StreamRequest) (<-chan Fragment, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.UserText) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	model, err := s.models.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	pair := ComposePrompts(req.Schema, req.UserText, req.SystemPrompt)

	out := make(chan Fragment)
	go s.produce(ctx, CompletionRequest{
		APIKey:       req.APIKey,
		Model:        model.ID,
		SystemPrompt: pair.SystemPrompt,
		UserPrompt:   pair.UserPrompt,
	}, out)
	return out, nil
}

func (s *Streamer) produce(ctx context.Context, req CompletionRequest, out chan<- Fragment) {
	defer close(out)
	defer observability.TrackStream()()

	start := time.Now()
	delivered := 0
	err := s.provider.StreamText(ctx, req, func(text string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		if delivered == 0 {
			observability.ObserveFirstFragment(time.Since(start))
		}
		select {
		case out <- Fragment{Text: text}:
			delivered++
			observability.IncrementFragments()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err == nil {
		observability.ObserveGenerationStream(req.Model, observability.StreamCompleted)
		s.logger.InfoContext(ctx, "generation_completed",
			slog.String("model", req.Model),
			slog.Int("fragments", delivered),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}
	if ctx.Err() != nil {
		// A caller disconnect is not an upstream failure.
		observability.ObserveGenerationStream(req.Model, observability.StreamAbandoned)
		s.logger.InfoContext(ctx, "generation_abandoned",
			slog.String("model", req.Model),
			slog.Int("fragments", delivered),
		)
		return
	}

	observability.ObserveGenerationStream(req.Model, observability.StreamFailed)
	s.logger.WarnContext(ctx, "generation_failed",
		slog.String("model", req.Model),
		slog.Int("fragments", delivered),
		slog.String("error", err.Error()),
	)
	select {
	case out <- Fragment{Err: fmt.Errorf("%w: %w", ErrGenerationFailed, err)}:
	case <-ctx.Done():
	}
}

// Collect drains fragments into a single string. It returns the text received
// before any terminal error together with that error.
func Collect(fragments <-chan Fragment) (string, error) {
	var b strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			return b.String(), fragment.Err
		}
		b.WriteString(fragment.Text)
	}
	return b.String(), nil
}
