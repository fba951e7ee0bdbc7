package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "policy.network_mode")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// githubNameRegex matches valid owner and repository names
var githubNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateGitHub()...)
	errors = append(errors, c.validatePolicy()...)
	errors = append(errors, c.validateDashboard()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateGitHub() []ValidationError {
	var errors []ValidationError

	// Owner and repo may be empty until a command needs the platform.
	if c.GitHub.Owner != "" && !githubNameRegex.MatchString(c.GitHub.Owner) {
		errors = append(errors, ValidationError{
			Field:   "github.owner",
			Value:   c.GitHub.Owner,
			Message: "must contain only letters, digits, '.', '_' or '-'",
		})
	}
	if c.GitHub.Repo != "" && !githubNameRegex.MatchString(c.GitHub.Repo) {
		errors = append(errors, ValidationError{
			Field:   "github.repo",
			Value:   c.GitHub.Repo,
			Message: "must contain only letters, digits, '.', '_' or '-'",
		})
	}
	if c.GitHub.APIURL != "" && !strings.HasPrefix(c.GitHub.APIURL, "http://") && !strings.HasPrefix(c.GitHub.APIURL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "github.api_url",
			Value:   c.GitHub.APIURL,
			Message: "must be an http(s) URL",
		})
	}
	if c.GitHub.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "github.timeout_seconds",
			Value:   c.GitHub.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	const maxRetriesLimit = 10
	if c.GitHub.MaxRetries < 0 || c.GitHub.MaxRetries > maxRetriesLimit {
		errors = append(errors, ValidationError{
			Field:   "github.max_retries",
			Value:   c.GitHub.MaxRetries,
			Message: fmt.Sprintf("must be between 0 and %d", maxRetriesLimit),
		})
	}

	return errors
}

func (c *Config) validatePolicy() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateGlobs(c.Policy.BlockedPaths, "policy.blocked_paths")...)
	errors = append(errors, validateGlobs(c.Policy.AllowedPaths, "policy.allowed_paths")...)
	errors = append(errors, validateGlobs(c.Policy.ApprovalPaths, "policy.approval_paths")...)

	for i, cmd := range c.Policy.DangerousCommands {
		if strings.TrimSpace(cmd) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("policy.dangerous_commands[%d]", i),
				Value:   cmd,
				Message: "must not be blank",
			})
		}
	}

	if c.Policy.NetworkMode != "" && !slices.Contains(ValidNetworkModes(), c.Policy.NetworkMode) {
		errors = append(errors, ValidationError{
			Field:   "policy.network_mode",
			Value:   c.Policy.NetworkMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidNetworkModes(), ", ")),
		})
	}

	if c.Policy.StepTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "policy.step_timeout_seconds",
			Value:   c.Policy.StepTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	if c.Policy.WatchRulesFile && c.Policy.RulesFile == "" {
		errors = append(errors, ValidationError{
			Field:   "policy.watch_rules_file",
			Value:   c.Policy.WatchRulesFile,
			Message: "requires policy.rules_file to be set",
		})
	}

	return errors
}

// validateGlobs rejects blank or syntactically invalid glob patterns.
func validateGlobs(patterns []string, field string) []ValidationError {
	var errors []ValidationError
	for i, p := range patterns {
		if strings.TrimSpace(p) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Value:   p,
				Message: "must not be blank",
			})
			continue
		}
		if !doublestar.ValidatePattern(p) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Value:   p,
				Message: "is not a valid glob pattern",
			})
		}
	}
	return errors
}

func (c *Config) validateDashboard() []ValidationError {
	var errors []ValidationError

	const maxConcurrency = 64
	if c.Dashboard.Concurrency < 1 || c.Dashboard.Concurrency > maxConcurrency {
		errors = append(errors, ValidationError{
			Field:   "dashboard.concurrency",
			Value:   c.Dashboard.Concurrency,
			Message: fmt.Sprintf("must be between 1 and %d", maxConcurrency),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
