// Package schema retrieves the PostgREST schema description of a Supabase
// project and reduces it to the compact string folded into generation prompts.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supaseed/supaseed/internal/observability"
)

// ErrFetchFailed is the single error surfaced for every fetch failure. The
// underlying cause is wrapped for logging.
var ErrFetchFailed = errors.New("failed to fetch schema")

const DefaultRestPath = "/rest/v1/"

// Description is the whitespace-stripped JSON of the schema "definitions"
// object. It is treated as opaque by everything downstream.
type Description string

func (d Description) String() string {
	return string(d)
}

type Config struct {
	RestPath string
	// Timeout of zero leaves the deadline to the HTTP client defaults.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Fetcher struct {
	restPath string
	client   *http.Client
}

func NewFetcher(cfg Config) *Fetcher {
	restPath := strings.TrimSpace(cfg.RestPath)
	if restPath == "" {
		restPath = DefaultRestPath
	}
	if !strings.HasPrefix(restPath, "/") {
		restPath = "/" + restPath
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{restPath: restPath, client: client}
}

// ValidateEndpoint reports whether raw is an absolute http(s) URL with a host.
func ValidateEndpoint(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint url host is required")
	}
	return nil
}

// Fetch issues a single GET against the PostgREST root of endpointURL. There
// is no retry; any failure is reported as ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, endpointURL, accessKey string) (Description, error) {
	start := time.Now()
	description, err := f.fetch(ctx, endpointURL, accessKey)
	observability.ObserveSchemaFetch(err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return description, nil
}

func (f *Fetcher) fetch(ctx context.Context, endpointURL, accessKey string) (Description, error) {
	target, err := f.buildURL(endpointURL, accessKey)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build schema request: %w", err)
	}
	req.Header.Set("Accept", "application/openapi+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request schema: %w", redactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read schema response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("schema request failed status=%d", resp.StatusCode)
	}
	return ParseDefinitions(body)
}

func (f *Fetcher) buildURL(endpointURL, accessKey string) (string, error) {
	if err := ValidateEndpoint(endpointURL); err != nil {
		return "", err
	}
	base := strings.TrimRight(strings.TrimSpace(endpointURL), "/")
	query := url.Values{}
	query.Set("apikey", accessKey)
	return base + f.restPath + "?" + query.Encode(), nil
}

// redactURLError hides the apikey query parameter carried by *url.Error.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	parsed, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		urlErr.URL = "[redacted]"
		return err
	}
	query := parsed.Query()
	if query.Has("apikey") {
		query.Set("apikey", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	urlErr.URL = parsed.String()
	return err
}

// ParseDefinitions extracts the "definitions" member of an OpenAPI document
// and compacts it into the string browsers produce for the same document.
func ParseDefinitions(body []byte) (Description, error) {
	var document map[string]json.RawMessage
	if err := json.Unmarshal(body, &document); err != nil {
		return "", fmt.Errorf("decode schema document: %w", err)
	}
	if document == nil {
		return "", fmt.Errorf("schema document is not an object")
	}
	raw, ok := document["definitions"]
	if !ok {
		return "", fmt.Errorf("schema document has no definitions")
	}
	compact, err := compactJSON(raw)
	if err != nil {
		return "", fmt.Errorf("compact definitions: %w", err)
	}
	return Description(compact), nil
}
