package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete shepherd configuration
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Plans     PlansConfig     `mapstructure:"plans"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GitHubConfig controls how pull request signals are collected
type GitHubConfig struct {
	// Owner is the repository owner (user or organization)
	Owner string `mapstructure:"owner"`
	// Repo is the repository name
	Repo string `mapstructure:"repo"`
	// Token is the API token. Usually supplied via SHEPHERD_GITHUB_TOKEN.
	Token string `mapstructure:"token"`
	// APIURL overrides the REST endpoint for GitHub Enterprise (default: public GitHub)
	APIURL string `mapstructure:"api_url"`
	// TimeoutSeconds bounds one signal collection, all retries included (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// MaxRetries is the number of retries after the first attempt (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
}

// Timeout returns the collection timeout as a time.Duration (0 means no deadline)
func (c *GitHubConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PolicyConfig seeds the built-in policy rules
type PolicyConfig struct {
	// BlockedPaths are glob patterns agents may never touch
	BlockedPaths []string `mapstructure:"blocked_paths"`
	// AllowedPaths, when non-empty, restricts agents to files matching one of these globs
	AllowedPaths []string `mapstructure:"allowed_paths"`
	// ApprovalPaths are globs whose modification requires human approval
	ApprovalPaths []string `mapstructure:"approval_paths"`
	// DangerousCommands are case-insensitive substrings that block a command
	DangerousCommands []string `mapstructure:"dangerous_commands"`
	// NetworkMode is "open", "allowlist" or "strict" (default: "allowlist")
	NetworkMode string `mapstructure:"network_mode"`
	// AllowedHosts are the hosts reachable in allowlist mode
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	// StepTimeoutSeconds is the ceiling on a single step's runtime, 0 = no ceiling (default: 3600)
	StepTimeoutSeconds int `mapstructure:"step_timeout_seconds"`
	// RestrictBots blocks actions requested by bot accounts (default: true)
	RestrictBots bool `mapstructure:"restrict_bots"`
	// RulesFile is an optional YAML file of additional rules
	RulesFile string `mapstructure:"rules_file"`
	// WatchRulesFile reloads RulesFile when it changes (default: false)
	WatchRulesFile bool `mapstructure:"watch_rules_file"`
}

// PlansConfig controls where migration plan documents are read from
type PlansConfig struct {
	// Dir holds one markdown document per migration (default: "migrations")
	Dir string `mapstructure:"dir"`
}

// DashboardConfig controls the status dashboard
type DashboardConfig struct {
	// Concurrency is the number of migrations refreshed in parallel (default: 4)
	Concurrency int `mapstructure:"concurrency"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Dir is where shepherd.log is written; empty logs to stderr
	Dir string `mapstructure:"dir"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry export
type TelemetryConfig struct {
	// Enabled turns on tracing and metrics (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Stdout writes spans and metrics to stdout when enabled (default: true)
	Stdout bool `mapstructure:"stdout"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Policy: PolicyConfig{
			BlockedPaths: []string{
				"node_modules/**",
				".git/**",
				"**/.env",
				"**/.env.*",
				"**/*.pem",
				"**/id_rsa*",
			},
			AllowedPaths:  []string{},
			ApprovalPaths: []string{".github/workflows/**"},
			DangerousCommands: []string{
				"rm -rf /",
				"sudo ",
				"curl | sh",
				"wget | sh",
				"chmod 777",
				"git push --force",
				"mkfs",
				"dd if=",
			},
			NetworkMode:        "allowlist",
			AllowedHosts:       []string{"github.com", "api.github.com", "registry.npmjs.org", "proxy.golang.org"},
			StepTimeoutSeconds: 3600,
			RestrictBots:       true,
			RulesFile:          "",
			WatchRulesFile:     false,
		},
		Plans: PlansConfig{
			Dir: "migrations",
		},
		Dashboard: DashboardConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Dir:   "",
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Stdout:  true,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// GitHub defaults
	viper.SetDefault("github.owner", defaults.GitHub.Owner)
	viper.SetDefault("github.repo", defaults.GitHub.Repo)
	viper.SetDefault("github.token", defaults.GitHub.Token)
	viper.SetDefault("github.api_url", defaults.GitHub.APIURL)
	viper.SetDefault("github.timeout_seconds", defaults.GitHub.TimeoutSeconds)
	viper.SetDefault("github.max_retries", defaults.GitHub.MaxRetries)

	// Policy defaults
	viper.SetDefault("policy.blocked_paths", defaults.Policy.BlockedPaths)
	viper.SetDefault("policy.allowed_paths", defaults.Policy.AllowedPaths)
	viper.SetDefault("policy.approval_paths", defaults.Policy.ApprovalPaths)
	viper.SetDefault("policy.dangerous_commands", defaults.Policy.DangerousCommands)
	viper.SetDefault("policy.network_mode", defaults.Policy.NetworkMode)
	viper.SetDefault("policy.allowed_hosts", defaults.Policy.AllowedHosts)
	viper.SetDefault("policy.step_timeout_seconds", defaults.Policy.StepTimeoutSeconds)
	viper.SetDefault("policy.restrict_bots", defaults.Policy.RestrictBots)
	viper.SetDefault("policy.rules_file", defaults.Policy.RulesFile)
	viper.SetDefault("policy.watch_rules_file", defaults.Policy.WatchRulesFile)

	// Plans defaults
	viper.SetDefault("plans.dir", defaults.Plans.Dir)

	// Dashboard defaults
	viper.SetDefault("dashboard.concurrency", defaults.Dashboard.Concurrency)

	// Logging defaults
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	viper.SetDefault("telemetry.stdout", defaults.Telemetry.Stdout)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if it
// cannot be loaded. Commands that must fail on bad config call Load instead.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shepherd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shepherd"
	}
	return filepath.Join(home, ".config", "shepherd")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidNetworkModes returns the list of valid policy.network_mode values
func ValidNetworkModes() []string {
	return []string{"open", "allowlist", "strict"}
}
