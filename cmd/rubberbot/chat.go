package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rubberbot/internal/session"
	"rubberbot/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with RubberBot in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sessions := session.NewStore(cfg.Session.Capacity, cfg.Session.IdleTimeout())
		engine, err := buildEngine(cmd.Context(), cfg, sessions, nil)
		if err != nil {
			return err
		}
		m := tui.New(engine, uuid.NewString(), cfg.Server.RequestTimeout())
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and print the JSON response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine(cmd.Context(), cfg, nil, nil)
		if err != nil {
			return err
		}
		resp := engine.Answer(cmd.Context(), strings.Join(args, " "), "")
		return printJSON(cmd, resp)
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List every question grouped by category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := buildEngine(cmd.Context(), cfg, nil, nil)
		if err != nil {
			return err
		}
		return printJSON(cmd, engine.ListTopics())
	},
}
