package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/analysis"
	"github.com/fyrsmithlabs/journalgpt/internal/chat"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/spf13/cobra"
)

// journaler is the part of services.Journal the interactive commands use.
type journaler interface {
	WriteEntry(ctx context.Context, userID, text string) (analysis.Feedback, string, error)
	Answer(ctx context.Context, userID, question string) (string, error)
}

func runMenu(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	done := make(chan struct{})
	defer close(done)
	lines, readErr := chat.ReadLines(cmd.InOrStdin(), done)
	if err := menu(ctx, lines, cmd.OutOrStdout(), a.registry.Journal(), a.userID, a.logger); err != nil {
		return err
	}
	if err := readErr(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

// menu loops over write, chat and exit until the user exits, input ends or
// ctx is cancelled. Failed entries are reported and the menu continues.
func menu(ctx context.Context, lines <-chan string, out io.Writer, j journaler, userID string, logger *logging.Logger) error {
	for {
		fmt.Fprintln(out, renderMenu())
		fmt.Fprint(out, "Choose an option (1-3): ")

		choice, ok := nextLine(ctx, lines)
		if !ok {
			fmt.Fprintln(out)
			return nil
		}

		switch strings.TrimSpace(choice) {
		case "1":
			fmt.Fprintln(out, "\nEnter your journal entry (press ENTER twice to submit):")
			text := readEntry(ctx, lines)
			if strings.TrimSpace(text) == "" {
				fmt.Fprintln(out, noticeStyle.Render("No entry provided."))
				continue
			}
			if err := writeEntry(ctx, out, j, userID, text); err != nil {
				fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			}
		case "2":
			session := chat.NewSession(userID, j, logger)
			if err := session.Serve(ctx, lines, out, chatStyle()); err != nil {
				return err
			}
		case "3":
			fmt.Fprintln(out, noticeStyle.Render("Goodbye! Keep reflecting and growing!"))
			return nil
		default:
			fmt.Fprintln(out, errorStyle.Render("Invalid choice. Please select 1, 2, or 3."))
		}
	}
}

func nextLine(ctx context.Context, lines <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return line, ok
	}
}

// readEntry collects lines until an empty line or the end of input.
func readEntry(ctx context.Context, lines <-chan string) string {
	var entry []string
	for {
		line, ok := nextLine(ctx, lines)
		if !ok || line == "" {
			return strings.Join(entry, "\n")
		}
		entry = append(entry, line)
	}
}

// writeEntry gets feedback, prints it, then stores the entry. Whatever was
// produced is printed before an error is returned: feedback survives a failed
// store, and an unparsed reply is shown raw.
func writeEntry(ctx context.Context, out io.Writer, j journaler, userID, text string) error {
	fmt.Fprintln(out, noticeStyle.Render("\nGetting feedback..."))
	fb, id, err := j.WriteEntry(ctx, userID, text)

	var malformed *analysis.MalformedReplyError
	switch {
	case fb != (analysis.Feedback{}):
		fmt.Fprintln(out, renderFeedback(fb))
	case errors.As(err, &malformed):
		fmt.Fprintln(out, malformed.Reply)
	}
	if id != "" {
		fmt.Fprintln(out, successStyle.Render("Stored journal with ID: "+id))
	}
	if id != "" && malformed != nil {
		// The raw reply was shown and the entry stored.
		return nil
	}
	return err
}
