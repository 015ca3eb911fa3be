package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cache"
	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/config"
	"github.com/theirongolddev/sitebook/internal/events"
	"github.com/theirongolddev/sitebook/internal/logging"
	"github.com/theirongolddev/sitebook/internal/metrics"
	"github.com/theirongolddev/sitebook/internal/mutation"
	"github.com/theirongolddev/sitebook/internal/pipeline"
	"github.com/theirongolddev/sitebook/internal/provider"
	"github.com/theirongolddev/sitebook/internal/store"
)

var (
	flagAPIURL  string
	flagQuiet   bool
	flagVerbose bool
	flagNoCache bool
)

const responseCacheSize = 256

var errNotLoggedIn = errors.New("not logged in, run `sitebook login` first")

var rootCmd = &cobra.Command{
	Use:           "sitebook",
	Short:         "Construction project dashboard",
	Long:          "Track phases, tasks, budget, inventory and permits of your house build from the terminal.",
	RunE:          runDashboard,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Backend API root (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip the response cache and the offline snapshot")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagAPIURL != "" {
		cfg.API.BaseURL = flagAPIURL
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", config.ConfigPath(), err)
	}
	return cfg, nil
}

// sessionOptions tweaks openSession for the daemon and the TUI.
type sessionOptions struct {
	// LogFile sends JSON logs to a file instead of stderr.
	LogFile string
	// Progress reports per-resource fallback loading on stderr.
	Progress bool
}

// session is everything a command needs to talk to the backend.
type session struct {
	cfg       config.Config
	log       *zap.Logger
	store     *store.Store
	client    *api.Client
	provider  *provider.Provider
	metrics   *metrics.Recorder
	events    *events.Publisher
	mutations *mutation.Service
}

func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Verbose: flagVerbose, Quiet: flagQuiet, File: opts.LogFile})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening local database: %w", err)
	}

	s := &session{cfg: cfg, log: logger, store: st}

	var responses *cache.LRU[[]byte]
	if !flagNoCache {
		responses = cache.New[[]byte](responseCacheSize, cfg.CacheTTL())
	}
	s.client = api.New(api.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Tokens:  st,
		Cache:   responses,
		Logger:  logger,
	})

	s.metrics = metrics.Nop()
	if ep := cfg.Metrics.OTLPEndpoint; ep != "" {
		rec, err := metrics.NewOTLP(ctx, ep, cfg.Metrics.Insecure)
		if err != nil {
			logger.Warn("metrics export disabled", zap.String(logging.FieldAddr, ep), zap.Error(err))
		} else {
			s.metrics = rec
		}
	}

	if url := cfg.Events.AMQPURL; url != "" {
		pub, err := events.NewPublisher(url, cfg.Events.Exchange, cfg.Events.RoutingKey, logger)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			s.events = pub
		}
	}

	var progress pipeline.ProgressFunc
	if opts.Progress && !flagQuiet {
		progress = func(current, total int) {
			fmt.Fprintf(os.Stderr, "\r  Loading [%d/%d]", current, total)
			if current == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	loader := pipeline.NewLoader(s.client, 0, progress, logger)

	popts := provider.Options{
		Auth:     s.client,
		Source:   loader,
		Observer: s.metrics,
		Logger:   logger,
	}
	if !flagNoCache {
		popts.Cache = st
	}
	s.provider = provider.New(popts)

	recorders := []mutation.Recorder{st, s.metrics}
	if s.events != nil {
		recorders = append(recorders, s.events)
	}
	runner := mutation.NewRunner(s.provider, logger, recorders...)
	s.mutations = mutation.NewService(runner, s.client)

	return s, nil
}

// Close releases every resource opened by openSession.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.log.Warn("closing event publisher", zap.Error(err))
		}
	}
	if err := s.metrics.Close(ctx); err != nil {
		s.log.Warn("flushing metrics", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("closing local database", zap.Error(err))
	}
	_ = s.log.Sync()
}

// loadDashboard restores the stored session and fetches a fresh snapshot.
// When the fetch fails but an offline copy exists, the copy is used.
func (s *session) loadDashboard(ctx context.Context) (provider.State, error) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Loading dashboard...\n")
	}
	err := s.provider.Init(ctx)
	st := s.provider.Get()
	if !st.LoggedIn() {
		if errors.Is(err, api.ErrSessionExpired) {
			return st, err
		}
		return st, errNotLoggedIn
	}
	if err != nil {
		if st.LastRefresh.IsZero() {
			return st, err
		}
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  %s\n", cli.RenderWarning(fmt.Sprintf(
				"Offline: showing data from %s (%v)", st.LastRefresh.Local().Format(time.DateTime), err)))
		}
	}
	return st, nil
}

// requireUser checks for a stored session without fetching the dashboard.
func (s *session) requireUser(ctx context.Context) error {
	u, err := s.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		return errNotLoggedIn
	}
	return nil
}

// withSession opens a session for the duration of fn.
func withSession(opts sessionOptions, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// explain turns API errors into actionable messages.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrSessionExpired), errors.Is(err, api.ErrNoSession):
		return fmt.Errorf("%w (run `sitebook login`)", err)
	case errors.Is(err, api.ErrRateLimited):
		return fmt.Errorf("%w, try again in a minute", err)
	}
	return err
}
