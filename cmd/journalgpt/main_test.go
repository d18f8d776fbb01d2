package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJournal struct {
	written  []string
	asked    []string
	writeErr error
	// storeErr fails storage after feedback was generated.
	storeErr error
	// rawReply makes feedback unparseable; the entry is still stored.
	rawReply string
}

var reflectiveFeedback = analysis.Feedback{
	Mood:            "reflective",
	ClarityScore:    8,
	Summary:         "A thoughtful day.",
	Insight:         "Noticing is the first step.",
	SuggestedAction: "Take a short walk.",
}

func (f *fakeJournal) WriteEntry(_ context.Context, userID, text string) (analysis.Feedback, string, error) {
	if f.writeErr != nil {
		return analysis.Feedback{}, "", f.writeErr
	}
	if f.storeErr != nil {
		return reflectiveFeedback, "", f.storeErr
	}
	f.written = append(f.written, userID+":"+text)
	if f.rawReply != "" {
		return analysis.Feedback{}, "entry-1", &analysis.MalformedReplyError{
			Reply: f.rawReply,
			Err:   analysis.ErrMalformedResponse,
		}
	}
	return reflectiveFeedback, "entry-1", nil
}

func (f *fakeJournal) Answer(_ context.Context, _, question string) (string, error) {
	f.asked = append(f.asked, question)
	return "because of " + question, nil
}

func feed(items ...string) <-chan string {
	lines := make(chan string, len(items))
	for _, item := range items {
		lines <- item
	}
	close(lines)
	return lines
}

func TestReadEntry(t *testing.T) {
	text := readEntry(context.Background(), feed("first line", "second line", "", "after"))
	assert.Equal(t, "first line\nsecond line", text)

	text = readEntry(context.Background(), feed("only line"))
	assert.Equal(t, "only line", text)
}

func TestMenu_WriteThenExit(t *testing.T) {
	j := &fakeJournal{}
	var out bytes.Buffer

	err := menu(context.Background(), feed("1", "Today was exhausting", "but I learned something.", "", "3"), &out, j, "u1", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1:Today was exhausting\nbut I learned something."}, j.written)
	assert.Contains(t, out.String(), "reflective")
	assert.Contains(t, out.String(), "8/10")
	assert.Contains(t, out.String(), "Stored journal with ID: entry-1")
	assert.Contains(t, out.String(), "Goodbye! Keep reflecting and growing!")
}

func TestMenu_EmptyEntryAndInvalidChoice(t *testing.T) {
	j := &fakeJournal{}
	var out bytes.Buffer

	require.NoError(t, menu(context.Background(), feed("1", "", "9", "3"), &out, j, "u1", nil))
	assert.Empty(t, j.written)
	assert.Contains(t, out.String(), "No entry provided.")
	assert.Contains(t, out.String(), "Invalid choice. Please select 1, 2, or 3.")
}

func TestMenu_WriteFailureKeepsMenuRunning(t *testing.T) {
	j := &fakeJournal{writeErr: errors.New("generation failed")}
	var out bytes.Buffer

	require.NoError(t, menu(context.Background(), feed("1", "text", "", "3"), &out, j, "u1", nil))
	assert.Contains(t, out.String(), "generation failed")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestMenu_StorageFailureStillShowsFeedback(t *testing.T) {
	j := &fakeJournal{storeErr: errors.New("storing entry: vector index error: unavailable")}
	var out bytes.Buffer

	require.NoError(t, menu(context.Background(), feed("1", "text", "", "3"), &out, j, "u1", nil))
	assert.Contains(t, out.String(), "reflective")
	assert.Contains(t, out.String(), "8/10")
	assert.Contains(t, out.String(), "vector index error: unavailable")
	assert.NotContains(t, out.String(), "Stored journal with ID")
}

func TestMenu_UnparsedFeedbackShownRawAndStored(t *testing.T) {
	j := &fakeJournal{rawReply: "Mood: tired. Clarity 7/10."}
	var out bytes.Buffer

	require.NoError(t, menu(context.Background(), feed("1", "text", "", "3"), &out, j, "u1", nil))
	assert.Equal(t, []string{"u1:text"}, j.written)
	assert.Contains(t, out.String(), "Mood: tired. Clarity 7/10.")
	assert.Contains(t, out.String(), "Stored journal with ID: entry-1")
	assert.NotContains(t, out.String(), "Error:")
}

func TestChatStyleRendersText(t *testing.T) {
	style := chatStyle()
	for _, render := range []func(string) string{style.Notice, style.Answer, style.Error} {
		require.NotNil(t, render)
		assert.Contains(t, render("hello"), "hello")
	}
}

func TestMenu_ChatSharesInput(t *testing.T) {
	j := &fakeJournal{}
	var out bytes.Buffer

	require.NoError(t, menu(context.Background(), feed("2", "When am I calm?", "quit", "3"), &out, j, "u1", nil))
	assert.Equal(t, []string{"When am I calm?"}, j.asked)
	assert.Contains(t, out.String(), chat.GreetingMessage[:20])
	assert.Contains(t, out.String(), "because of When am I calm?")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestMenu_EndOfInput(t *testing.T) {
	var out bytes.Buffer
	assert.NoError(t, menu(context.Background(), feed(), &out, &fakeJournal{}, "u1", nil))
}

func TestMenu_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	assert.NoError(t, menu(ctx, make(chan string), &out, &fakeJournal{}, "u1", nil))
}

func TestRenderFeedback(t *testing.T) {
	got := renderFeedback(analysis.Feedback{
		Mood:            "calm",
		ClarityScore:    9,
		Summary:         "s",
		Insight:         "i",
		SuggestedAction: "a",
	})
	for _, want := range []string{"Mood:", "calm", "9/10", "Insight:", "Try tomorrow:"} {
		assert.Contains(t, got, want)
	}
}
