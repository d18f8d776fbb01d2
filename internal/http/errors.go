package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/completion"
	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
)

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, journal.ErrInvalidInput), errors.Is(err, analysis.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrContextTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, analysis.ErrMalformedResponse),
		errors.Is(err, embeddings.ErrEmbedding),
		errors.Is(err, completion.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, vectorstore.ErrIndex):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
