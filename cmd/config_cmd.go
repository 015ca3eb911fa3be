// Package cmd implements the sitebook CLI commands.
package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagAPIURL != "" {
		cfg.API.BaseURL = flagAPIURL
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	section := func(name string, pairs [][2]string) {
		fmt.Printf("  [%s]\n", name)
		fmt.Print(cli.RenderKeyValues(pairs))
		fmt.Println()
	}

	section("API", [][2]string{
		{"Base URL", cfg.API.BaseURL},
		{"Timeout", cfg.APITimeout().String()},
		{"Cache TTL", cfg.CacheTTL().String()},
	})
	section("Appearance", [][2]string{
		{"Theme", cfg.Appearance.Theme},
	})
	section("TUI", [][2]string{
		{"Auto refresh", strconv.FormatBool(cfg.TUI.AutoRefresh)},
		{"Interval", cfg.RefreshInterval().String()},
	})
	section("Daemon", [][2]string{
		{"Address", cfg.Daemon.Addr},
		{"Interval", strconv.Itoa(cfg.Daemon.IntervalSec) + "s"},
		{"Events buffer", strconv.Itoa(cfg.Daemon.EventsBuffer)},
	})
	section("Events", [][2]string{
		{"AMQP", orNotConfigured(maskURL(cfg.Events.AMQPURL))},
		{"Exchange", cfg.Events.Exchange},
		{"Routing key", cfg.Events.RoutingKey},
	})
	section("Metrics", [][2]string{
		{"OTLP endpoint", orNotConfigured(cfg.Metrics.OTLPEndpoint)},
		{"Insecure", strconv.FormatBool(cfg.Metrics.Insecure)},
	})
	section("Storage", [][2]string{
		{"Database", cfg.DBPath()},
	})

	if err := cfg.Validate(); err != nil {
		fmt.Println("  " + cli.RenderWarning(err.Error()))
		fmt.Println()
	}
	fmt.Println("  Run `sitebook setup` to reconfigure.")
	return nil
}

func orNotConfigured(s string) string {
	if s == "" {
		return "not configured"
	}
	return s
}

// maskURL hides the password of a broker URL.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "****"
	}
	return u.Redacted()
}
