package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	// Start from whatever is on disk, even if it does not validate.
	cfg, _ := config.Load()

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}
	interval := strconv.Itoa(cfg.TUI.RefreshIntervalSec)
	amqpURL := cfg.Events.AMQPURL
	otlp := cfg.Metrics.OTLPEndpoint

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to sitebook!").
				Description("Point sitebook at your project backend and pick a look."),
			huh.NewInput().
				Title("API base URL").
				Value(&cfg.API.BaseURL).
				Validate(validURL),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&cfg.Appearance.Theme),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Refresh the dashboard automatically?").
				Value(&cfg.TUI.AutoRefresh),
			huh.NewInput().
				Title("Refresh interval (seconds)").
				Value(&interval).
				Validate(positiveInt),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("RabbitMQ URL for mutation events").
				Description("Leave empty to disable.").
				Value(&amqpURL),
			huh.NewInput().
				Title("OTLP metrics endpoint (host:port)").
				Description("Leave empty to disable.").
				Value(&otlp),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled, nothing saved.")
			return nil
		}
		return err
	}

	cfg.TUI.RefreshIntervalSec, _ = strconv.Atoi(interval)
	cfg.Events.AMQPURL = amqpURL
	cfg.Metrics.OTLPEndpoint = otlp

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("not saved: %w", err)
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `sitebook login` next, or `sitebook setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func validURL(s string) error {
	c := config.DefaultConfig()
	c.API.BaseURL = s
	return c.Validate()
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive number of seconds")
	}
	return nil
}
