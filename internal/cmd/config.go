package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shepherd/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify shepherd configuration",
	Long: `View or modify shepherd configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  shepherd config set github.owner acme
  shepherd config set policy.network_mode strict
  shepherd config set dashboard.concurrency 8

Valid keys:
  github.owner                 - Repository owner
  github.repo                  - Repository name
  github.api_url               - REST endpoint for GitHub Enterprise
  github.timeout_seconds       - Bound on one signal collection
  github.max_retries           - Retries after the first attempt
  policy.network_mode          - Options: open, allowlist, strict
  policy.step_timeout_seconds  - Ceiling on one step's runtime (0 = none)
  policy.restrict_bots         - Block actions requested by bots (true/false)
  policy.rules_file            - YAML file of additional rules
  policy.watch_rules_file      - Reload rules_file on change (true/false)
  plans.dir                    - Directory of migration plans
  dashboard.concurrency        - Migrations refreshed in parallel
  logging.dir                  - Log directory (empty = stderr)
  logging.level                - Options: debug, info, warn, error
  telemetry.enabled            - Export traces and metrics (true/false)

The API token is never written to the config file; set SHEPHERD_GITHUB_TOKEN.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/shepherd/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// settableKeys maps each key config set accepts to its value type.
var settableKeys = map[string]string{
	"github.owner":                "string",
	"github.repo":                 "string",
	"github.api_url":              "string",
	"github.timeout_seconds":      "int",
	"github.max_retries":          "int",
	"policy.network_mode":         "string",
	"policy.step_timeout_seconds": "int",
	"policy.restrict_bots":        "bool",
	"policy.rules_file":           "string",
	"policy.watch_rules_file":     "bool",
	"plans.dir":                   "string",
	"dashboard.concurrency":       "int",
	"logging.dir":                 "string",
	"logging.level":               "string",
	"telemetry.enabled":           "bool",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	settings := viper.AllSettings()
	if gh, ok := settings["github"].(map[string]any); ok {
		if tok, _ := gh["token"].(string); tok != "" {
			gh["token"] = "********"
		}
	}
	delete(settings, "config")
	delete(settings, "json")

	if jsonOutput(cmd) {
		return writeJSON(out, settings)
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Fprint(out, string(data))

	if _, err := config.Load(); err != nil {
		fmt.Fprintf(out, "\nWarning: configuration is invalid:\n%v\n", err)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	keyType, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'shepherd config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue any
	switch keyType {
	case "string":
		if key == "policy.network_mode" && !slices.Contains(config.ValidNetworkModes(), value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidNetworkModes(), ", "))
		}
		if key == "logging.level" && !slices.Contains(config.ValidLogLevels(), value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configFile := targetConfigFile()
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write only what the file already holds plus the new key, so defaults
	// and environment values are not frozen into it.
	fileCfg := viper.New()
	fileCfg.SetConfigFile(configFile)
	fileCfg.SetConfigType("yaml")
	if _, err := os.Stat(configFile); err == nil {
		if err := fileCfg.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	fileCfg.Set(key, typedValue)
	if err := fileCfg.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	viper.Set(key, typedValue)

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

// targetConfigFile is the file config set writes: the active one if any.
func targetConfigFile() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return config.ConfigFile()
}

const defaultConfigContent = `# Shepherd Configuration

# Where migration pull requests live
github:
  owner: ""
  repo: ""
  # Leave empty and set SHEPHERD_GITHUB_TOKEN instead
  token: ""
  # REST endpoint override for GitHub Enterprise
  api_url: ""
  # Upper bound on one signal collection, retries included
  timeout_seconds: 30
  # Retries after the first attempt for transient failures
  max_retries: 3

# Built-in policy rules
policy:
  # Globs agents may never touch
  blocked_paths:
    - node_modules/**
    - .git/**
    - "**/.env"
    - "**/.env.*"
    - "**/*.pem"
    - "**/id_rsa*"
  # When non-empty, agents may only touch files matching one of these globs
  allowed_paths: []
  # Globs whose modification needs human approval
  approval_paths:
    - .github/workflows/**
  # Case-insensitive substrings that block a command
  dangerous_commands:
    - "rm -rf /"
    - "sudo "
    - "curl | sh"
    - "wget | sh"
    - "chmod 777"
    - "git push --force"
    - "mkfs"
    - "dd if="
  # open, allowlist or strict
  network_mode: allowlist
  allowed_hosts:
    - github.com
    - api.github.com
    - registry.npmjs.org
    - proxy.golang.org
  # Ceiling on a single step's runtime in seconds (0 = no ceiling)
  step_timeout_seconds: 3600
  # Block actions requested by bot accounts
  restrict_bots: true
  # Optional YAML file of additional rules
  rules_file: ""
  # Reload rules_file when it changes (policy check --stream)
  watch_rules_file: false

# Migration plan documents, one markdown file per migration
plans:
  dir: migrations

# Status dashboard
dashboard:
  # Migrations refreshed in parallel
  concurrency: 4

logging:
  # Empty writes JSON logs to stderr
  dir: ""
  # debug, info, warn, error
  level: info

telemetry:
  # Export traces and metrics
  enabled: false
  # Write them to stderr when enabled
  stdout: true
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'shepherd config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to point shepherd at your repository.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/shepherd/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: SHEPHERD_* (e.g., SHEPHERD_GITHUB_TOKEN)")
	return nil
}
