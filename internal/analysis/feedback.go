package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Feedback is the structured reply to a single journal entry.
type Feedback struct {
	Mood            string `json:"mood"`
	ClarityScore    int    `json:"clarityScore"`
	Summary         string `json:"summary"`
	Insight         string `json:"insight"`
	SuggestedAction string `json:"suggestedAction"`
}

type rawFeedback struct {
	Mood            *string         `json:"mood"`
	ClarityScore    json.RawMessage `json:"clarityScore"`
	Summary         *string         `json:"summary"`
	Insight         *string         `json:"insight"`
	SuggestedAction *string         `json:"suggestedAction"`
}

// MalformedReplyError carries a feedback reply that did not parse, so callers
// can still show it. It matches ErrMalformedResponse with errors.Is.
type MalformedReplyError struct {
	Reply string
	Err   error
}

func (e *MalformedReplyError) Error() string { return e.Err.Error() }

func (e *MalformedReplyError) Unwrap() error { return e.Err }

// ParseFeedback extracts the first valid feedback object from a model reply,
// ignoring markdown code fences, surrounding prose and braces that do not
// open a JSON object. clarityScore must be an integer literal in [0, 10] and
// every string field non-empty.
func ParseFeedback(reply string) (Feedback, error) {
	// A decoded object that fails the schema is reported over a decode error.
	var decodeErr, schemaErr error
	for offset := 0; ; {
		i := strings.IndexByte(reply[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i
		offset = start + 1

		var raw rawFeedback
		if err := json.NewDecoder(strings.NewReader(reply[start:])).Decode(&raw); err != nil {
			if decodeErr == nil {
				decodeErr = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			continue
		}
		fb, err := raw.validate()
		if err == nil {
			return fb, nil
		}
		if schemaErr == nil {
			schemaErr = err
		}
	}
	switch {
	case schemaErr != nil:
		return Feedback{}, schemaErr
	case decodeErr != nil:
		return Feedback{}, decodeErr
	}
	return Feedback{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
}

func (raw rawFeedback) validate() (Feedback, error) {
	score, err := parseScore(raw.ClarityScore)
	if err != nil {
		return Feedback{}, err
	}

	fb := Feedback{ClarityScore: score}
	fields := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"mood", raw.Mood, &fb.Mood},
		{"summary", raw.Summary, &fb.Summary},
		{"insight", raw.Insight, &fb.Insight},
		{"suggestedAction", raw.SuggestedAction, &fb.SuggestedAction},
	}
	for _, f := range fields {
		if f.src == nil || strings.TrimSpace(*f.src) == "" {
			return Feedback{}, fmt.Errorf("%w: %s is missing or empty", ErrMalformedResponse, f.name)
		}
		*f.dst = strings.TrimSpace(*f.src)
	}
	return fb, nil
}

func parseScore(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, fmt.Errorf("%w: clarityScore must be an integer", ErrMalformedResponse)
	}
	score, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: clarityScore must be an integer, got %s", ErrMalformedResponse, raw)
	}
	if score < 0 || score > 10 {
		return 0, fmt.Errorf("%w: clarityScore %d out of range 0-10", ErrMalformedResponse, score)
	}
	return score, nil
}
