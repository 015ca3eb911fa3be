package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/tui"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive TUI dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	needSetup := !config.Exists()
	logFile := filepath.Join(config.DataDir(), "tui.log")

	return withSession(sessionOptions{LogFile: logFile}, func(_ context.Context, s *session) error {
		theme.SetActive(s.cfg.Appearance.Theme)

		// Force TrueColor profile so all background styling produces ANSI codes
		// Without this, lipgloss may default to Ascii profile (no colors)
		lipgloss.SetColorProfile(termenv.TrueColor)

		app := tui.NewApp(tui.Options{
			Session:   s.provider,
			Mutator:   s.mutations,
			Config:    s.cfg,
			NeedSetup: needSetup,
			Logger:    s.log,
		})
		p := tea.NewProgram(app, tea.WithAltScreen())

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	})
}
