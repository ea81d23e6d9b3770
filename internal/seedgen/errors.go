package seedgen

import (
	"errors"

	"github.com/supaseed/supaseed/internal/schema"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSchemaFetchFailed = schema.ErrFetchFailed
	ErrGenerationFailed  = errors.New("failed to generate seed query")
)

// UserMessage converts a pipeline error into the short message shown to the
// person who submitted the form.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "Supabase URL, anon key, and prompt are required, plus an OpenAI key when generating directly."
	case errors.Is(err, ErrSchemaFetchFailed):
		return "Failed to fetch database definitions. Please check your Supabase URL and Anon Key."
	case errors.Is(err, ErrGenerationFailed):
		return "Failed to generate seed query. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
