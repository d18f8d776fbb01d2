package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Style decorates the text Run writes. Nil fields print text unchanged.
type Style struct {
	Notice func(string) string
	Answer func(string) string
	Error  func(string) string
}

func apply(f func(string) string, s string) string {
	if f == nil {
		return s
	}
	return f(s)
}

// MaxLineBytes bounds one line of input. Journal entries are typed one line
// per paragraph, so a paragraph can be long.
const MaxLineBytes = 1 << 20

// ReadLines streams the lines of in until EOF, a read error, a line longer
// than MaxLineBytes or done is closed. The channel is closed when reading
// stops. readErr reports the scanner error once the channel is closed, and
// nil after a clean EOF.
func ReadLines(in io.Reader, done <-chan struct{}) (lines <-chan string, readErr func() error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return out, func() error {
		select {
		case err := <-errc:
			errc <- err
			return err
		default:
			return nil
		}
	}
}

// Run reads questions line by line from in and writes replies to out until a
// termination token, EOF or cancellation. A failed read ends the session with
// the read error.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer, style Style) error {
	done := make(chan struct{})
	defer close(done)
	lines, readErr := ReadLines(in, done)
	if err := s.Serve(ctx, lines, out, style); err != nil {
		return err
	}
	if err := readErr(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// Serve is Run over an existing line stream, so a caller can share one input
// between the chat and other prompts. A closed channel ends the session like
// EOF. It holds no business logic.
func (s *Session) Serve(ctx context.Context, lines <-chan string, out io.Writer, style Style) error {
	s.Start()
	fmt.Fprintf(out, "\n%s\n\n", apply(style.Notice, GreetingMessage))

	for {
		fmt.Fprint(out, "You: ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			s.Exit()
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			s.Exit()
			fmt.Fprintf(out, "\n%s\n", apply(style.Notice, FarewellMessage))
			return nil
		}

		if q := strings.TrimSpace(line); q != "" && !IsTermination(q) {
			fmt.Fprintf(out, "\n%s\n", apply(style.Notice, AnalyzingMessage))
		}

		reply, err := s.Turn(ctx, line)
		if err != nil {
			// Cancellation during a turn.
			fmt.Fprintln(out)
			return nil
		}

		switch reply.Kind {
		case ReplyExit:
			fmt.Fprintf(out, "%s\n", apply(style.Notice, reply.Text))
			return nil
		case ReplyAnswer:
			fmt.Fprintf(out, "\nAI Analyst: %s\n\n", apply(style.Answer, reply.Text))
		case ReplyError:
			fmt.Fprintf(out, "%s\n\n", apply(style.Error, reply.Text))
		}
	}
}
