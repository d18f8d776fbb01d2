package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/journal"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"go.uber.org/zap"
)

// EntryWriter persists journal entries. *journal.Store implements it.
type EntryWriter interface {
	AddEntry(ctx context.Context, userID, text string) (string, error)
}

// Analyzer produces feedback and answers. *analysis.Engine implements it.
type Analyzer interface {
	Evaluate(ctx context.Context, text string) (analysis.Feedback, error)
	Answer(ctx context.Context, userID, question string) (string, error)
}

// Journal is the core surface: store an entry, get feedback on an entry and
// ask a question about oneself. It holds no state of its own.
type Journal struct {
	writer   EntryWriter
	analyzer Analyzer
	logger   *logging.Logger
}

// NewJournal creates the facade.
func NewJournal(writer EntryWriter, analyzer Analyzer, logger *logging.Logger) *Journal {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Journal{writer: writer, analyzer: analyzer, logger: logger.Named("journal")}
}

// StoreEntry embeds and persists text for userID and returns the new entry
// id. Storing the same text twice yields two entries.
func (j *Journal) StoreEntry(ctx context.Context, userID, text string) (string, error) {
	ctx = logging.WithUserID(ctx, userID)
	id, err := j.writer.AddEntry(ctx, userID, text)
	if err != nil {
		j.logger.Warn(ctx, "storing entry failed", zap.Error(err), logging.TextLen("text", text))
		return "", err
	}
	j.logger.Info(ctx, "entry stored", zap.String("entry_id", id), logging.TextLen("text", text))
	return id, nil
}

// GetFeedback evaluates a single entry. Nothing is stored.
func (j *Journal) GetFeedback(ctx context.Context, text string) (analysis.Feedback, error) {
	fb, err := j.analyzer.Evaluate(ctx, text)
	if err != nil {
		return analysis.Feedback{}, err
	}
	j.logger.Debug(ctx, "feedback generated", zap.String("mood", fb.Mood), zap.Int("clarity_score", fb.ClarityScore))
	return fb, nil
}

// AskAboutSelf answers question from userID's entries. A user with no
// entries gets analysis.NotEnoughEntriesMessage.
func (j *Journal) AskAboutSelf(ctx context.Context, userID, question string) (string, error) {
	ctx = logging.WithUserID(ctx, userID)
	return j.analyzer.Answer(ctx, userID, question)
}

// Answer implements chat.Answerer.
func (j *Journal) Answer(ctx context.Context, userID, question string) (string, error) {
	return j.AskAboutSelf(ctx, userID, question)
}

// WriteEntry runs the journaling flow: feedback first, then storage.
//
// A generation failure stores nothing. A reply that does not parse is still
// a reply, so the entry is stored and the id is returned alongside the
// *analysis.MalformedReplyError. A storage failure returns the feedback that
// was already generated.
func (j *Journal) WriteEntry(ctx context.Context, userID, text string) (analysis.Feedback, string, error) {
	if strings.TrimSpace(userID) == "" {
		return analysis.Feedback{}, "", fmt.Errorf("%w: user id is empty", journal.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return analysis.Feedback{}, "", fmt.Errorf("%w: journal text is empty", journal.ErrInvalidInput)
	}

	fb, fbErr := j.GetFeedback(ctx, text)
	if fbErr != nil && !errors.Is(fbErr, analysis.ErrMalformedResponse) {
		return analysis.Feedback{}, "", fmt.Errorf("getting feedback: %w", fbErr)
	}

	id, err := j.StoreEntry(ctx, userID, text)
	if err != nil {
		return fb, "", errors.Join(wrapFeedbackErr(fbErr), fmt.Errorf("storing entry: %w", err))
	}
	return fb, id, wrapFeedbackErr(fbErr)
}

func wrapFeedbackErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("getting feedback: %w", err)
}
