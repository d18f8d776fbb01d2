// Package chat drives repeated questions about the user, one turn at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a Session state.
type State int

const (
	StateIdle State = iota
	StateAwaitingInput
	StateProcessing
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateProcessing:
		return "processing"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrBusy is returned by Turn while another turn is processing.
	ErrBusy = errors.New("chat session is processing another turn")

	// ErrExited is returned by Turn after the session has exited.
	ErrExited = errors.New("chat session has exited")
)

// Messages shown by the session.
const (
	GreetingMessage = "Welcome to your Personal Behavior Analysis Chat!\n" +
		"Ask me anything about your personality, behavior patterns, or emotional tendencies.\n" +
		"I'll analyze your journal entries to give you personalized insights.\n" +
		"Type 'quit' to exit."
	FarewellMessage  = "Take care! Keep journaling for better insights!"
	AnalyzingMessage = "Analyzing your patterns..."
	ApologyMessage   = "Sorry, I encountered an error: %v\nPlease try asking your question differently."
)

var terminationTokens = map[string]bool{"quit": true, "exit": true, "bye": true}

// IsTermination reports whether input ends the session.
func IsTermination(input string) bool {
	return terminationTokens[strings.ToLower(strings.TrimSpace(input))]
}

// Answerer answers one question. *analysis.Engine implements it.
type Answerer interface {
	Answer(ctx context.Context, userID, question string) (string, error)
}

// ReplyKind classifies the outcome of a turn.
type ReplyKind int

const (
	// ReplyNone means the input was empty and nothing happened.
	ReplyNone ReplyKind = iota
	// ReplyAnswer carries an answer in Text.
	ReplyAnswer
	// ReplyError carries a failed turn in Err. The session continues.
	ReplyError
	// ReplyExit means the session exited.
	ReplyExit
)

// Reply is the outcome of one turn.
type Reply struct {
	Kind ReplyKind
	Text string
	Err  error
}

// Session is a per-user turn-taking state machine:
//
//	Idle -> AwaitingInput -> Processing -> AwaitingInput ... -> Exited
//
// A failed turn never ends the session; only a termination token, EOF or
// cancellation does.
type Session struct {
	id       string
	userID   string
	answerer Answerer
	logger   *logging.Logger

	mu    sync.Mutex
	state State
	turns int
}

// NewSession creates an idle session for userID.
func NewSession(userID string, answerer Answerer, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		id:       uuid.NewString(),
		userID:   userID,
		answerer: answerer,
		logger:   logger.Named("chat"),
		state:    StateIdle,
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves an idle session to AwaitingInput.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		s.state = StateAwaitingInput
	}
}

// Exit moves the session to Exited.
func (s *Session) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateExited
}

// Turn handles one line of input. Answer failures are reported in the Reply
// and leave the session awaiting input. The returned error is ErrBusy,
// ErrExited or the context error when ctx is done.
func (s *Session) Turn(ctx context.Context, input string) (Reply, error) {
	s.mu.Lock()
	switch s.state {
	case StateExited:
		s.mu.Unlock()
		return Reply{}, ErrExited
	case StateProcessing:
		s.mu.Unlock()
		return Reply{}, ErrBusy
	}
	if err := ctx.Err(); err != nil {
		s.state = StateExited
		s.mu.Unlock()
		return Reply{Kind: ReplyExit}, err
	}

	question := strings.TrimSpace(input)
	switch {
	case question == "":
		s.state = StateAwaitingInput
		s.mu.Unlock()
		return Reply{Kind: ReplyNone}, nil
	case IsTermination(question):
		s.state = StateExited
		s.mu.Unlock()
		return Reply{Kind: ReplyExit, Text: FarewellMessage}, nil
	}

	s.state = StateProcessing
	s.turns++
	turn := s.turns
	s.mu.Unlock()

	ctx = logging.WithUserID(logging.WithSessionID(ctx, s.id), s.userID)
	answer, err := s.answerer.Answer(ctx, s.userID, question)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.state = StateExited
		return Reply{Kind: ReplyExit, Err: err}, ctxErr
	}
	s.state = StateAwaitingInput
	if err != nil {
		s.logger.Warn(ctx, "chat turn failed", zap.Int("turn", turn), zap.Error(err))
		return Reply{Kind: ReplyError, Err: err, Text: fmt.Sprintf(ApologyMessage, err)}, nil
	}
	return Reply{Kind: ReplyAnswer, Text: answer}, nil
}
