package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

// setupValues holds the first-run form bindings. Forms write through
// pointers, so it lives on the heap and App copies share it.
type setupValues struct {
	theme       string
	autoRefresh bool
	intervalSec int
}

func newSetupValues(cfg config.Config) *setupValues {
	return &setupValues{
		theme:       cfg.Appearance.Theme,
		autoRefresh: cfg.TUI.AutoRefresh,
		intervalSec: cfg.TUI.RefreshIntervalSec,
	}
}

func newSetupForm(v *setupValues) *huh.Form {
	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to sitebook!").
				Description("Your construction project at a glance.\nA few settings first; change them later with `sitebook setup`."),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&v.theme),
			huh.NewConfirm().
				Title("Refresh the dashboard automatically?").
				Value(&v.autoRefresh),
			huh.NewSelect[int]().
				Title("Refresh every").
				Options(
					huh.NewOption("30 seconds", 30),
					huh.NewOption("1 minute", 60),
					huh.NewOption("5 minutes", 300),
				).
				Value(&v.intervalSec),
		),
	).WithShowHelp(false)
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		a.applySetup()
		a.needSetup = false
		a.setupForm = nil
		return a, a.nextForm()
	case huh.StateAborted:
		a.needSetup = false
		a.setupForm = nil
		return a, a.nextForm()
	}
	return a, cmd
}

func (a *App) applySetup() {
	v := a.setupVals
	a.cfg.Appearance.Theme = v.theme
	a.cfg.TUI.AutoRefresh = v.autoRefresh
	a.cfg.TUI.RefreshIntervalSec = v.intervalSec
	theme.SetActive(v.theme)

	a.autoRefresh = v.autoRefresh
	a.refreshInterval = a.cfg.RefreshInterval()

	if err := config.Save(a.cfg); err != nil {
		a.log.Warn("saving setup", zap.Error(err))
		a.flash = "Could not save config: " + err.Error()
	}
}

type loginValues struct {
	username string
	password string
}

func notBlank(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func newLoginForm(v *loginValues, baseURL string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description(baseURL).
				Value(&v.username).
				Validate(notBlank("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&v.password).
				Validate(notBlank("password")),
		),
	).WithShowHelp(false)
}

func (a App) updateLoginForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.loginForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.loginForm = f
	}

	switch a.loginForm.State {
	case huh.StateCompleted:
		v := a.loginVals
		a.loginForm = nil
		a.loggingIn = true
		a.flash = ""
		return a, loginCmd(a.ctx, a.session, strings.TrimSpace(v.username), v.password)
	case huh.StateAborted:
		a.shutdown()
		return a, tea.Quit
	}
	return a, cmd
}

func (a App) viewLogin() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 3)
	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	warnStyle := lipgloss.NewStyle().Foreground(t.Orange)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ sitebook"))
	b.WriteString(mutedStyle.Render(" · Sign in"))
	b.WriteString("\n\n")
	if a.loggingIn {
		b.WriteString(a.spinner.View())
		b.WriteString(mutedStyle.Render(" Signing in..."))
	} else if a.loginForm != nil {
		b.WriteString(a.loginForm.View())
	}
	if a.flash != "" {
		b.WriteString("\n\n")
		b.WriteString(warnStyle.Render(a.flash))
	}

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}
