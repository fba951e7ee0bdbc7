package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/migration"
	"github.com/Iron-Ham/shepherd/internal/plan"
	"github.com/Iron-Ham/shepherd/internal/policy"
	"github.com/Iron-Ham/shepherd/internal/signal"
	"github.com/Iron-Ham/shepherd/internal/state"
	"github.com/Iron-Ham/shepherd/internal/telemetry"
)

// app holds the wired components one command invocation needs.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	bus       *event.Bus
	store     *policy.Store
	baseRules []policy.Rule
	svc       *migration.Service
}

// newSource builds the pull request source. Tests replace it.
var newSource = func(cfg *config.Config, logger *logging.Logger) (signal.Source, error) {
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		return nil, errors.NewConfigError("github.owner and github.repo must be set", errors.ErrInvalidConfig).
			WithSource("github")
	}
	opts := []signal.GitHubOption{
		signal.WithMaxRetries(cfg.GitHub.MaxRetries),
		signal.WithSourceLogger(logger),
	}
	if cfg.GitHub.APIURL != "" {
		opts = append(opts, signal.WithBaseURL(cfg.GitHub.APIURL))
	}
	return signal.NewGitHubSource(&http.Client{}, cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo, opts...), nil
}

// configSource names where configuration was read from, for error messages.
func configSource() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "defaults and environment"
}

// appOptions selects which parts of the app a command needs.
type appOptions struct {
	// signals wires the GitHub source; commands that only evaluate policy skip it.
	signals bool
}

// newApp loads configuration and wires the components. Configuration and
// rule errors are fatal here, before any command runs.
func newApp(ctx context.Context, errOut io.Writer, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewConfigError("invalid configuration", err).WithSource(configSource())
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	if err := telemetry.Init(ctx, cfg.Telemetry, "shepherd", Version, errOut); err != nil {
		logger.Warn("telemetry disabled", "error", err.Error())
	}

	base, err := policy.BuiltinRules(cfg.Policy)
	if err != nil {
		return nil, err
	}
	rules := base
	if cfg.Policy.RulesFile != "" {
		extra, err := policy.LoadRulesFile(cfg.Policy.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = policy.Merge(base, extra)
	}
	store, err := policy.NewStore(rules...)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		bus:       event.NewBus(logger),
		store:     store,
		baseRules: base,
	}

	var collector migration.Collector = unavailableCollector{}
	if opts.signals {
		src, err := newSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		collector = signal.NewCollector(src,
			signal.WithLogger(logger),
			signal.WithTimeout(cfg.GitHub.Timeout()))
	}

	var plans plan.Source
	if cfg.Plans.Dir != "" {
		plans = plan.NewDirSource(cfg.Plans.Dir, logger)
	}

	a.svc = migration.NewService(collector, state.NewEngine(logger),
		policy.NewEvaluator(store, logger), plans, a.bus, logger)
	return a, nil
}

// watchRules reloads policy.rules_file into the store on every change and
// publishes a RulesReloadedEvent per attempt. Call the returned func to stop.
func (a *app) watchRules() (func(), error) {
	path := a.cfg.Policy.RulesFile
	if path == "" {
		return nil, errors.NewConfigError("policy.rules_file is not set", errors.ErrInvalidConfig).WithSource(configSource())
	}
	w, err := policy.NewWatcher(path, a.store, a.baseRules, a.logger,
		policy.WithReloadCallback(func(err error) {
			a.bus.Publish(event.NewRulesReloadedEvent(path, a.store.Len(), a.store.Version(), err))
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	w.Start()
	return w.Stop, nil
}

// close flushes telemetry and the log file.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
	_ = a.logger.Close()
}

// unavailableCollector backs commands that never collect signals.
type unavailableCollector struct{}

func (unavailableCollector) Collect(context.Context, string) (*signal.Snapshot, error) {
	return nil, fmt.Errorf("signal collection is not configured for this command")
}
