package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/chat"
	apihttp "github.com/fyrsmithlabs/journalgpt/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runWrite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var text string
	switch {
	case len(args) == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "Enter your journal entry (press ENTER twice to submit):")
		done := make(chan struct{})
		defer close(done)
		lines, readErr := chat.ReadLines(cmd.InOrStdin(), done)
		text = readEntry(ctx, lines)
		if err := readErr(); err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}
	case args[0] == "-":
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		text = string(content)
	default:
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
		text = string(content)
	}

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no entry provided")
	}
	return writeEntry(ctx, cmd.OutOrStdout(), a.registry.Journal(), a.userID, text)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	session := chat.NewSession(a.userID, a.registry.Journal(), a.logger)
	return session.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), chatStyle())
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	answer, err := a.registry.Journal().AskAboutSelf(ctx, a.userID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answerStyle.Render(answer))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := apihttp.NewServer(a.registry.Journal(), a.logger, &apihttp.Config{
		Host:  a.cfg.Server.Host,
		Port:  a.cfg.Server.Port,
		Meter: a.telemetry.Meter("journalgpt/http"),
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutdown requested", zap.Duration("timeout", a.cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errc
}
