package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/errors"
)

// Version is stamped at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Stateless migration orchestrator driven by pull requests",
	Long: `Shepherd infers the state of multi-step code migrations from the pull
requests that carry them, decides which step may run next, and checks agent
actions against a declarative policy before they happen.

Nothing is stored between runs: every answer is recomputed from GitHub.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error that was not already
// reported.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	var silent *silentError
	if err != nil && !errors.As(err, &silent) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), errorMessage(err))
	}
	return err
}

// errorMessage renders err for the terminal. Critical errors are labeled
// fatal, and errors meant for users get a hint about what to do next.
func errorMessage(err error) string {
	label := "Error:"
	if errors.GetSeverity(err) == errors.SeverityCritical {
		label = "Fatal:"
	}
	msg := fmt.Sprintf("%s %v", label, err)
	if !errors.IsUserFacing(err) {
		return msg
	}

	switch {
	case errors.Is(err, errors.ErrCanceled):
	case errors.Is(err, errors.ErrRateLimited):
		msg += "\nHint: GitHub throttled the request; set SHEPHERD_GITHUB_TOKEN or retry later."
	case errors.Is(err, errors.ErrInvalidConfig):
		msg += "\nHint: run 'shepherd config show' to inspect the effective configuration."
	case errors.IsRetryable(err):
		msg += "\nHint: the failure looks transient; retrying may succeed."
	}
	return msg
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/shepherd/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/shepherd")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SHEPHERD")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SHEPHERD_GITHUB_TOKEN for github.token
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// jsonOutput reports whether --json was given.
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// silentError signals failure after the result was already printed.
// Used to set exit code 1 without Cobra printing a duplicate error message.
type silentError struct {
	msg string
}

func (e *silentError) Error() string {
	return e.msg
}
