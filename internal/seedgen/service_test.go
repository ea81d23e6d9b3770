package seedgen

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/supaseed/supaseed/internal/schema"
)

type fakeFetcher struct {
	calls       atomic.Int32
	description schema.Description
	err         error
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string) (schema.Description, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.description, nil
}

type fakeProvider struct {
	calls     atomic.Int32
	fragments []string
	err       error
	lastReq   CompletionRequest
}

func (p *fakeProvider) StreamText(_ context.Context, req CompletionRequest, yield func(string) error) error {
	p.calls.Add(1)
	p.lastReq = req
	for _, fragment := range p.fragments {
		if err := yield(fragment); err != nil {
			return err
		}
	}
	return p.err
}

func newTestService(fetcher *fakeFetcher, provider *fakeProvider) *Service {
	return NewService(fetcher, NewStreamer(provider, DefaultModels(), nil), nil)
}

func validInput() Input {
	return Input{
		EndpointURL: "https://abc.supabase.co",
		AccessKey:   "anon",
		UserText:    "10 todos",
		APIKey:      "sk-test",
	}
}

func TestGenerateStreamsFragmentsInOrder(t *testing.T) {
	fetcher := &fakeFetcher{description: `{"todos":{}}`}
	provider := &fakeProvider{fragments: []string{"SELECT ", "1;"}}
	svc := newTestService(fetcher, provider)

	var phases []Phase
	fragments, err := svc.Generate(context.Background(), validInput(), func(p Phase) { phases = append(phases, p) })
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var got []string
	for fragment := range fragments {
		if fragment.Err != nil {
			t.Fatalf("unexpected error fragment: %v", fragment.Err)
		}
		got = append(got, fragment.Text)
	}
	if len(got) != 2 || got[0] != "SELECT " || got[1] != "1;" {
		t.Fatalf("fragments = %#v", got)
	}
	wantPhases := []Phase{PhaseFetchingSchema, PhaseComposing, PhaseStreaming}
	if len(phases) != len(wantPhases) {
		t.Fatalf("phases = %#v", phases)
	}
	for i := range wantPhases {
		if phases[i] != wantPhases[i] {
			t.Fatalf("phases = %#v", phases)
		}
	}
	if provider.lastReq.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", provider.lastReq.Model)
	}
	if provider.lastReq.SystemPrompt != DefaultSystemPrompt {
		t.Fatalf("expected default system prompt")
	}
	if provider.lastReq.APIKey != "sk-test" {
		t.Fatalf("api key = %q", provider.lastReq.APIKey)
	}
}

func TestGenerateFailureAfterOneFragment(t *testing.T) {
	fetcher := &fakeFetcher{description: `{}`}
	provider := &fakeProvider{fragments: []string{"SELECT "}, err: errors.New("connection reset")}
	svc := newTestService(fetcher, provider)

	fragments, err := svc.Generate(context.Background(), validInput(), nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	text, err := Collect(fragments)
	if text != "SELECT " {
		t.Fatalf("text before failure = %q", text)
	}
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("terminal error = %v, want ErrGenerationFailed", err)
	}
	if _, open := <-fragments; open {
		t.Fatalf("channel should be closed after the error fragment")
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls.Load())
	}
}

func TestGenerateInvalidInputMakesNoCalls(t *testing.T) {
	tests := map[string]func(*Input){
		"missing endpoint":   func(in *Input) { in.EndpointURL = "" },
		"missing access key": func(in *Input) { in.AccessKey = " " },
		"missing prompt":     func(in *Input) { in.UserText = "" },
		"missing api key":    func(in *Input) { in.APIKey = "" },
		"bad endpoint":       func(in *Input) { in.EndpointURL = "abc.supabase.co" },
		"unknown model":      func(in *Input) { in.Model = "gpt-99" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			fetcher := &fakeFetcher{description: `{}`}
			provider := &fakeProvider{}
			svc := newTestService(fetcher, provider)

			in := validInput()
			mutate(&in)
			_, err := svc.Generate(context.Background(), in, nil)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Generate() error = %v, want ErrInvalidInput", err)
			}
			if fetcher.calls.Load() != 0 || provider.calls.Load() != 0 {
				t.Fatalf("calls fetcher=%d provider=%d, want 0", fetcher.calls.Load(), provider.calls.Load())
			}
		})
	}
}

func TestGenerateSchemaFailureSkipsProvider(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.Join(schema.ErrFetchFailed, errors.New("status=401"))}
	provider := &fakeProvider{}
	svc := newTestService(fetcher, provider)

	var last Phase
	_, err := svc.Generate(context.Background(), validInput(), func(p Phase) { last = p })
	if !errors.Is(err, ErrSchemaFetchFailed) {
		t.Fatalf("Generate() error = %v, want ErrSchemaFetchFailed", err)
	}
	if provider.calls.Load() != 0 {
		t.Fatalf("provider calls = %d, want 0", provider.calls.Load())
	}
	if last != PhaseFailed {
		t.Fatalf("last phase = %q", last)
	}
}

func TestPromptDoesNotRequireAPIKey(t *testing.T) {
	fetcher := &fakeFetcher{description: `{"a":1,"b":2}`}
	provider := &fakeProvider{}
	svc := newTestService(fetcher, provider)

	in := validInput()
	in.APIKey = ""
	in.SystemPrompt = "custom"
	result, err := svc.Prompt(context.Background(), in)
	if err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}
	if result.Pair.SystemPrompt != "custom" {
		t.Fatalf("SystemPrompt = %q", result.Pair.SystemPrompt)
	}
	if result.Output != FormatPromptOutput(result.Pair) {
		t.Fatalf("Output does not match FormatPromptOutput")
	}
	if provider.calls.Load() != 0 {
		t.Fatalf("provider calls = %d, want 0", provider.calls.Load())
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("fetcher calls = %d, want 1", fetcher.calls.Load())
	}
}

func TestPromptInvalidInputMakesNoCalls(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newTestService(fetcher, &fakeProvider{})

	_, err := svc.Prompt(context.Background(), Input{EndpointURL: "https://abc.supabase.co", AccessKey: "anon"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Prompt() error = %v, want ErrInvalidInput", err)
	}
	if fetcher.calls.Load() != 0 {
		t.Fatalf("fetcher calls = %d, want 0", fetcher.calls.Load())
	}
}

func TestStreamStopsWhenConsumerCancels(t *testing.T) {
	provider := &fakeProvider{fragments: []string{"a", "b", "c", "d"}}
	streamer := NewStreamer(provider, DefaultModels(), nil)

	abandonedBefore := generationStreamCount(t, DefaultModelID, "abandoned")
	failedBefore := generationStreamCount(t, DefaultModelID, "failed")

	ctx, cancel := context.WithCancel(context.Background())
	fragments, err := streamer.Stream(ctx, StreamRequest{Schema: `{}`, UserText: "x", APIKey: "k"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	first := <-fragments
	if first.Text != "a" {
		t.Fatalf("first fragment = %#v", first)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-fragments:
			if !open {
				if got := generationStreamCount(t, DefaultModelID, "abandoned") - abandonedBefore; got != 1 {
					t.Fatalf("abandoned streams delta = %v, want 1", got)
				}
				if got := generationStreamCount(t, DefaultModelID, "failed") - failedBefore; got != 0 {
					t.Fatalf("failed streams delta = %v, want 0", got)
				}
				return
			}
		case <-deadline:
			t.Fatalf("producer did not stop after cancellation")
		}
	}
}

func generationStreamCount(t *testing.T, model, status string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != "supaseed_generation_streams_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["model"] == model && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode(""); err != nil || mode != ModePrompt {
		t.Fatalf("ParseMode(\"\") = %q, %v", mode, err)
	}
	if mode, err := ParseMode(" Direct "); err != nil || mode != ModeDirect {
		t.Fatalf("ParseMode(direct) = %q, %v", mode, err)
	}
	if _, err := ParseMode("batch"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ParseMode(batch) error = %v", err)
	}
}
