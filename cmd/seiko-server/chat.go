package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"seiko-companion/internal/chat"
	"seiko-companion/internal/completion"
	"seiko-companion/internal/config"
	"seiko-companion/internal/logging"
	"seiko-companion/internal/persona"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := logging.New(cfg.LogLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			for _, w := range cfg.Warnings {
				logger.Warn("config", zap.String("problem", w))
			}
			p, err := persona.Load(cfg.PersonaFile)
			if err != nil {
				return fmt.Errorf("failed to load persona: %w", err)
			}
			ctrl := chat.NewController(completion.New(cfg, p),
				chat.WithTypingDelay(cfg.TypingDelayMin, cfg.TypingDelayMax))
			if err := ctrl.SetView(chat.ViewChat); err != nil {
				return err
			}
			return runChat(cmd.Context(), ctrl, p, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runChat drives one controller from line input until EOF or /quit.
func runChat(ctx context.Context, ctrl *chat.Controller, p persona.Persona, in io.Reader, out io.Writer) error {
	for _, line := range p.Greeting {
		fmt.Fprintf(out, "%s: %s\n", p.Name, line)
	}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := sc.Text()
		cmd := strings.TrimSpace(line)
		switch {
		case cmd == "":
			continue
		case cmd == "/quit" || cmd == "/exit":
			return nil
		case cmd == "/state":
			st := ctrl.Snapshot()
			fmt.Fprintf(out, "view=%s messages=%d typing=%t\n", st.View, len(st.Messages), st.Typing)
			continue
		case cmd == "/view" || strings.HasPrefix(cmd, "/view "):
			name := strings.TrimSpace(strings.TrimPrefix(cmd, "/view"))
			if err := ctrl.SetView(chat.View(name)); err != nil {
				fmt.Fprintf(out, "unknown view %q (home, chat, gallery, about)\n", name)
				continue
			}
			fmt.Fprintf(out, "view: %s\n", ctrl.Snapshot().View)
			continue
		}

		fmt.Fprintf(out, "%s is typing...\n", p.Name)
		ex, err := ctrl.Send(ctx, line)
		if errors.Is(err, chat.ErrEmptyMessage) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", p.Name, ex.Reply)
	}
}
