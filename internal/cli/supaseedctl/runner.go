package supaseedctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/supaseed/supaseed/internal/sse"
)

type Options struct {
	BaseURL    string
	APIKey     string
	ClientID   string
	OpenAIKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type session struct {
	baseURL  string
	apiKey   string
	clientID string
	client   *http.Client
	// stream has no overall timeout; a generation may run for minutes.
	stream *http.Client
	stdout io.Writer
	stderr io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("supaseedctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "SupaSeed API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	clientID := fs.String("client-id", defaults.ClientID, "Client ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout for non-streaming requests (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	s := session{
		baseURL:  strings.TrimRight(*baseURL, "/"),
		apiKey:   strings.TrimSpace(*apiKey),
		clientID: strings.TrimSpace(*clientID),
		client:   defaults.HTTPClient,
		stream:   defaults.HTTPClient,
		stdout:   stdout,
		stderr:   stderr,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: *timeout}
		s.stream = &http.Client{}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "health":
		return s.simple(ctx, http.MethodGet, "/v1/health")
	case "ready":
		return s.simple(ctx, http.MethodGet, "/v1/ready")
	case "models":
		return s.simple(ctx, http.MethodGet, "/v1/models")
	case "default-prompt":
		return s.defaultPrompt(ctx)
	case "prompt":
		return s.prompt(ctx, rest)
	case "generate":
		return s.generate(ctx, rest, defaults.OpenAIKey)
	case "settings-get":
		return s.simple(ctx, http.MethodGet, "/v1/settings")
	case "settings-clear":
		return s.simple(ctx, http.MethodDelete, "/v1/settings")
	case "seeds":
		return s.simple(ctx, http.MethodGet, "/v1/seeds")
	case "seed-get":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: supaseedctl seed-get <id>")
			return 2
		}
		return s.raw(ctx, http.MethodGet, "/v1/seeds/"+rest[0])
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type seedFlags struct {
	fs               *flag.FlagSet
	endpoint         *string
	accessKey        *string
	prompt           *string
	systemPromptFile *string
	useSaved         *bool
}

func newSeedFlags(name string, stderr io.Writer) seedFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return seedFlags{
		fs:               fs,
		endpoint:         fs.String("endpoint", "", "Supabase project URL"),
		accessKey:        fs.String("access-key", "", "Supabase anon key"),
		prompt:           fs.String("prompt", "", "description of the data to seed"),
		systemPromptFile: fs.String("system-prompt-file", "", "file holding a custom system prompt"),
		useSaved:         fs.Bool("use-saved", false, "fill blank fields from saved settings"),
	}
}

func (f seedFlags) payload() (map[string]any, error) {
	payload := map[string]any{
		"endpoint_url": *f.endpoint,
		"access_key":   *f.accessKey,
		"prompt":       *f.prompt,
	}
	if *f.useSaved {
		payload["use_saved_settings"] = true
	}
	if path := strings.TrimSpace(*f.systemPromptFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		payload["system_prompt"] = string(raw)
	}
	return payload, nil
}

func (s session) prompt(ctx context.Context, args []string) int {
	flags := newSeedFlags("prompt", s.stderr)
	if err := flags.fs.Parse(args); err != nil {
		return 2
	}
	payload, err := flags.payload()
	if err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return 2
	}

	code, body, err := s.do(ctx, s.client, http.MethodPost, "/v1/seed/prompt", payload)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		writeHTTPError(s.stderr, code, body)
		return 1
	}
	var result struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "decode response: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(s.stdout, result.Output)
	return 0
}

// generate writes fragments to stdout as they arrive and phases to stderr.
func (s session) generate(ctx context.Context, args []string, defaultOpenAIKey string) int {
	flags := newSeedFlags("generate", s.stderr)
	openAIKey := flags.fs.String("openai-key", defaultOpenAIKey, "OpenAI API key")
	model := flags.fs.String("model", "", "model id (default: server default)")
	if err := flags.fs.Parse(args); err != nil {
		return 2
	}
	payload, err := flags.payload()
	if err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return 2
	}
	payload["openai_key"] = *openAIKey
	if strings.TrimSpace(*model) != "" {
		payload["model"] = strings.TrimSpace(*model)
	}

	resp, err := s.send(ctx, s.stream, http.MethodPost, "/v1/seed/generate", payload)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		writeHTTPError(s.stderr, resp.StatusCode, body)
		return 1
	}

	reader := sse.NewReader(resp.Body)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(s.stderr, "stream ended without completion")
			return 1
		}
		if err != nil {
			_, _ = fmt.Fprintf(s.stderr, "stream failed: %v\n", err)
			return 1
		}
		switch event.Type {
		case sse.EventStatus:
			var status sse.StatusPayload
			if json.Unmarshal([]byte(event.Data), &status) == nil {
				_, _ = fmt.Fprintf(s.stderr, "status: %s\n", status.Phase)
			}
		case sse.EventFragment:
			var fragment sse.FragmentPayload
			if err := json.Unmarshal([]byte(event.Data), &fragment); err != nil {
				_, _ = fmt.Fprintf(s.stderr, "decode fragment: %v\n", err)
				return 1
			}
			_, _ = io.WriteString(s.stdout, fragment.Text)
		case sse.EventError:
			var failure sse.ErrorPayload
			_ = json.Unmarshal([]byte(event.Data), &failure)
			_, _ = fmt.Fprintf(s.stderr, "\n%s: %s\n", failure.ErrorCode, failure.Message)
			return 1
		case sse.EventDone:
			var done sse.DonePayload
			_ = json.Unmarshal([]byte(event.Data), &done)
			_, _ = fmt.Fprintln(s.stdout)
			if done.SeedID != "" {
				_, _ = fmt.Fprintf(s.stderr, "archived as %s\n", done.SeedID)
			}
			return 0
		}
	}
}

func (s session) defaultPrompt(ctx context.Context) int {
	code, body, err := s.do(ctx, s.client, http.MethodGet, "/v1/system-prompt/default", nil)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		writeHTTPError(s.stderr, code, body)
		return 1
	}
	var result struct {
		SystemPrompt string `json:"system_prompt"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "decode response: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(s.stdout, result.SystemPrompt)
	return 0
}

func (s session) simple(ctx context.Context, method, path string) int {
	code, body, err := s.do(ctx, s.client, method, path, nil)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		writeHTTPError(s.stderr, code, body)
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(s.stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(s.stdout, string(body))
	}
	return 0
}

func (s session) raw(ctx context.Context, method, path string) int {
	code, body, err := s.do(ctx, s.client, method, path, nil)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		writeHTTPError(s.stderr, code, body)
		return 1
	}
	_, _ = s.stdout.Write(body)
	return 0
}

func (s session) do(ctx context.Context, client *http.Client, method, path string, payload any) (int, []byte, error) {
	resp, err := s.send(ctx, client, method, path, payload)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (s session) send(ctx context.Context, client *http.Client, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	if s.clientID != "" {
		req.Header.Set("X-Client-ID", s.clientID)
	}
	return client.Do(req)
}

func writeHTTPError(w io.Writer, code int, body []byte) {
	var envelope struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.ErrorCode != "" {
		_, _ = fmt.Fprintf(w, "http %d: %s: %s\n", code, envelope.ErrorCode, envelope.Message)
		return
	}
	_, _ = fmt.Fprintf(w, "http %d: %s\n", code, strings.TrimSpace(string(body)))
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: supaseedctl [flags] <command> [command flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  models           GET /v1/models")
	_, _ = fmt.Fprintln(w, "  default-prompt   GET /v1/system-prompt/default")
	_, _ = fmt.Fprintln(w, "  prompt           POST /v1/seed/prompt")
	_, _ = fmt.Fprintln(w, "  generate         POST /v1/seed/generate (streams SQL to stdout)")
	_, _ = fmt.Fprintln(w, "  settings-get     GET /v1/settings")
	_, _ = fmt.Fprintln(w, "  settings-clear   DELETE /v1/settings")
	_, _ = fmt.Fprintln(w, "  seeds            GET /v1/seeds")
	_, _ = fmt.Fprintln(w, "  seed-get <id>    GET /v1/seeds/{id}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
