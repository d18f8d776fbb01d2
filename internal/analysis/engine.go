// Package analysis turns journal text into feedback and answers questions
// about the user from their retrieved entries.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/completion"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/fyrsmithlabs/journalgpt/internal/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/journalgpt/internal/analysis"

var (
	// ErrMalformedResponse indicates the feedback reply did not match the schema.
	ErrMalformedResponse = errors.New("malformed feedback response")

	// ErrContextTooLarge indicates the assembled prompt exceeds MaxContextChars.
	ErrContextTooLarge = errors.New("context too large")

	// ErrInvalidInput indicates empty journal text or question.
	ErrInvalidInput = errors.New("invalid input")
)

// Searcher retrieves entry texts for a question. *retrieval.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, userID, query string, limit int) (retrieval.Result, error)
}

// Config tunes the engine. Zero fields take the defaults.
type Config struct {
	// Limit is the number of entries retrieved per question. Default 8.
	Limit int
	// MaxContextChars bounds the analyst system prompt. Default 24000.
	MaxContextChars int
	// MaxAnswerTokens bounds the generated answer. Default 800.
	MaxAnswerTokens int
	// FeedbackMaxTokens bounds the feedback reply. Default 512.
	FeedbackMaxTokens int
	// FeedbackTemperature defaults to 0.5.
	FeedbackTemperature float64
	// AnswerTemperature defaults to 0.7.
	AnswerTemperature float64
}

func (c *Config) applyDefaults() {
	if c.Limit <= 0 {
		c.Limit = 8
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 24000
	}
	if c.MaxAnswerTokens <= 0 {
		c.MaxAnswerTokens = 800
	}
	if c.FeedbackMaxTokens <= 0 {
		c.FeedbackMaxTokens = 512
	}
	if c.FeedbackTemperature == 0 {
		c.FeedbackTemperature = 0.5
	}
	if c.AnswerTemperature == 0 {
		c.AnswerTemperature = 0.7
	}
}

// Engine issues single-shot completion requests. It keeps no conversation
// state, never persists, and never retries.
type Engine struct {
	searcher  Searcher
	completer completion.Provider
	config    Config
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewEngine creates an Engine.
func NewEngine(searcher Searcher, completer completion.Provider, cfg Config, logger *logging.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		searcher:  searcher,
		completer: completer,
		config:    cfg,
		logger:    logger.Named("analysis"),
		tracer:    otel.Tracer(instrumentationName),
	}
}

// Evaluate asks for mood, clarity, one insight and one action for a single
// entry and parses the reply strictly.
func (e *Engine) Evaluate(ctx context.Context, journalText string) (fb Feedback, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Evaluate")
	defer span.End()
	defer recordError(span, &err)

	if strings.TrimSpace(journalText) == "" {
		return Feedback{}, fmt.Errorf("%w: journal text is empty", ErrInvalidInput)
	}

	reply, err := e.completer.Complete(ctx, completion.Request{
		System:      feedbackSystemPrompt,
		User:        journalText,
		MaxTokens:   e.config.FeedbackMaxTokens,
		Temperature: e.config.FeedbackTemperature,
	})
	if err != nil {
		return Feedback{}, generationErr(err)
	}

	fb, err = ParseFeedback(reply)
	if err != nil {
		e.logger.Warn(ctx, "feedback reply did not parse", zap.Error(err), logging.TextLen("reply", reply))
		return Feedback{}, &MalformedReplyError{Reply: reply, Err: err}
	}
	span.SetAttributes(attribute.Int("clarity_score", fb.ClarityScore))
	return fb, nil
}

// Answer retrieves the user's relevant entries and asks the analyst prompt
// the question. A user without entries gets NotEnoughEntriesMessage and no
// completion call is made. The generated text is returned verbatim.
func (e *Engine) Answer(ctx context.Context, userID, question string) (answer string, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Answer")
	defer span.End()
	defer recordError(span, &err)

	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}

	res, err := e.searcher.Search(ctx, userID, question, e.config.Limit)
	if err != nil {
		return "", fmt.Errorf("retrieving entries: %w", err)
	}
	span.SetAttributes(
		attribute.String("strategy", string(res.Strategy)),
		attribute.Int("entries", len(res.Texts)),
	)
	if res.Empty() {
		return NotEnoughEntriesMessage, nil
	}

	system := analystPrompt(BuildContext(res.Texts))
	if len(system) > e.config.MaxContextChars {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrContextTooLarge, len(system), e.config.MaxContextChars)
	}

	answer, err = e.completer.Complete(ctx, completion.Request{
		System:      system,
		User:        question,
		MaxTokens:   e.config.MaxAnswerTokens,
		Temperature: e.config.AnswerTemperature,
	})
	if err != nil {
		return "", generationErr(err)
	}

	e.logger.Debug(ctx, "question answered",
		zap.String("strategy", string(res.Strategy)),
		zap.Int("entries", len(res.Texts)),
		logging.TextLen("answer", answer),
	)
	return answer, nil
}

func generationErr(err error) error {
	if errors.Is(err, completion.ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %w", completion.ErrGeneration, err)
}

func recordError(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
}
