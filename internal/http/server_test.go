package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/completion"
	"github.com/fyrsmithlabs/journalgpt/internal/embeddings"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/fyrsmithlabs/journalgpt/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeJournal struct {
	storeErr    error
	feedbackErr error
	askErr      error

	storedUser string
	storedText string
	askedUser  string
}

func (f *fakeJournal) StoreEntry(_ context.Context, userID, text string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.storedUser, f.storedText = userID, text
	return "3f0c2a4e-9d1b-4c55-8f3e-7a2b6c1d0e9f", nil
}

func (f *fakeJournal) GetFeedback(_ context.Context, text string) (analysis.Feedback, error) {
	if f.feedbackErr != nil {
		return analysis.Feedback{}, f.feedbackErr
	}
	return analysis.Feedback{
		Mood:            "tired",
		ClarityScore:    6,
		Summary:         "A long day.",
		Insight:         "Rest is part of the work.",
		SuggestedAction: "Sleep early.",
	}, nil
}

func (f *fakeJournal) AskAboutSelf(_ context.Context, userID, question string) (string, error) {
	if f.askErr != nil {
		return "", f.askErr
	}
	f.askedUser = userID
	return "You answered: " + question, nil
}

func newTestServer(t *testing.T, j JournalAPI) (*Server, *logging.TestLogger) {
	t.Helper()
	logger := logging.NewTestLogger()
	s, err := NewServer(j, logger.Logger, nil)
	require.NoError(t, err)
	return s, logger
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 9191, BodyLimit: "2K"}
		server, err := NewServer(&fakeJournal{}, logging.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&fakeJournal{}, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
		assert.Equal(t, "1M", server.config.BodyLimit)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeJournal{}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when journal is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "journal cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeJournal{})
	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleStoreEntry(t *testing.T) {
	t.Run("stores entry", func(t *testing.T) {
		j := &fakeJournal{}
		s, _ := newTestServer(t, j)

		rec := do(s, http.MethodPost, "/api/v1/entries", `{"user_id":"u1","text":"I went for a calm walk"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp StoreEntryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "3f0c2a4e-9d1b-4c55-8f3e-7a2b6c1d0e9f", resp.ID)
		assert.Equal(t, "u1", j.storedUser)
		assert.Equal(t, "I went for a calm walk", j.storedText)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{})
		rec := do(s, http.MethodPost, "/api/v1/entries", `{"user_id":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{})
		rec := do(s, http.MethodPost, "/api/v1/entries", `{"user_id":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("embedding failure is a bad gateway", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{storeErr: fmt.Errorf("embedding entry: %w", embeddings.ErrEmbedding)})
		rec := do(s, http.MethodPost, "/api/v1/entries", `{"user_id":"u1","text":"x"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "embedding entry")
	})

	t.Run("index failure is unavailable", func(t *testing.T) {
		s, logger := newTestServer(t, &fakeJournal{storeErr: fmt.Errorf("storing entry: %w", vectorstore.ErrIndex)})
		rec := do(s, http.MethodPost, "/api/v1/entries", `{"user_id":"u1","text":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		logger.AssertLogged(t, zapcore.ErrorLevel, "request failed")
	})

	t.Run("body over limit", func(t *testing.T) {
		s, err := NewServer(&fakeJournal{}, logging.NewNop(), &Config{Host: "localhost", Port: 9090, BodyLimit: "1K"})
		require.NoError(t, err)
		body := `{"user_id":"u1","text":"` + strings.Repeat("a", 2048) + `"}`
		rec := do(s, http.MethodPost, "/api/v1/entries", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestHandleFeedback(t *testing.T) {
	t.Run("returns feedback", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{})
		rec := do(s, http.MethodPost, "/api/v1/feedback", `{"text":"Today was exhausting but I learned something."}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"mood": "tired",
			"clarityScore": 6,
			"summary": "A long day.",
			"insight": "Rest is part of the work.",
			"suggestedAction": "Sleep early."
		}`, rec.Body.String())
	})

	t.Run("malformed model reply is a bad gateway", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{feedbackErr: analysis.ErrMalformedResponse})
		rec := do(s, http.MethodPost, "/api/v1/feedback", `{"text":"x"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("requires text", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{})
		rec := do(s, http.MethodPost, "/api/v1/feedback", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleAsk(t *testing.T) {
	t.Run("answers question", func(t *testing.T) {
		j := &fakeJournal{}
		s, _ := newTestServer(t, j)
		rec := do(s, http.MethodPost, "/api/v1/ask", `{"user_id":"u1","question":"When am I calm?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "You answered: When am I calm?", resp.Answer)
		assert.Equal(t, "u1", j.askedUser)
	})

	t.Run("context too large", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{askErr: fmt.Errorf("%w: 30000 characters exceeds 24000", analysis.ErrContextTooLarge)})
		rec := do(s, http.MethodPost, "/api/v1/ask", `{"user_id":"u1","question":"q"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "context too large")
	})

	t.Run("generation failure", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeJournal{askErr: fmt.Errorf("%w: openai: status code: 500", completion.ErrGeneration)})
		rec := do(s, http.MethodPost, "/api/v1/ask", `{"user_id":"u1","question":"q"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "openai")
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", journal.ErrInvalidInput), http.StatusBadRequest},
		{analysis.ErrInvalidInput, http.StatusBadRequest},
		{analysis.ErrContextTooLarge, http.StatusRequestEntityTooLarge},
		{analysis.ErrMalformedResponse, http.StatusBadGateway},
		{embeddings.ErrEmbedding, http.StatusBadGateway},
		{completion.ErrGeneration, http.StatusBadGateway},
		{vectorstore.ErrNotInitialized, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", completion.ErrGeneration, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	j := &ctxJournal{fakeJournal: &fakeJournal{}, seen: &seen}
	s, _ := newTestServer(t, j)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewBufferString(`{"user_id":"u1","question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(echoRequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(echoRequestIDHeader))
}

func TestRequestIDUnsafeValueIgnored(t *testing.T) {
	var seen string
	j := &ctxJournal{fakeJournal: &fakeJournal{}, seen: &seen}
	s, _ := newTestServer(t, j)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewBufferString(`{"user_id":"u1","question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(echoRequestIDHeader, "bad id with spaces")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen)
}

const echoRequestIDHeader = "X-Request-Id"

type ctxJournal struct {
	*fakeJournal
	seen *string
}

func (c *ctxJournal) AskAboutSelf(ctx context.Context, userID, question string) (string, error) {
	*c.seen = logging.RequestIDFromContext(ctx)
	return c.fakeJournal.AskAboutSelf(ctx, userID, question)
}

func TestServerStartShutdown(t *testing.T) {
	s, err := NewServer(&fakeJournal{}, logging.NewNop(), &Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
