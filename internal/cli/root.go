package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.3.0"

var (
	cfgFile  string
	verbose  bool
	mockMode bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimguard",
	Short: "ClaimGuard - claim outcome prediction and auto-correction",
	Long: `ClaimGuard predicts whether a healthcare claim will pass or fail adjudication
by comparing it against similar historical claims, and applies a versioned
catalog of correction rules to claims that are likely to fail.

Predictions are advisory. Corrections are reported, never written back to the
claims repository.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every subcommand
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claimguard %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", false, "read claims from the fixtures file instead of the live repository")
	rootCmd.PersistentFlags().String("fixtures", "", "fixtures file used in mock mode")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("gateway.fixtures", rootCmd.PersistentFlags().Lookup("fixtures"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".claimguard"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// CLAIMGUARD_GATEWAY_REST_TOKEN overrides gateway.rest.token
	viper.SetEnvPrefix("CLAIMGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every default key so env overrides reach nested settings
func setDefaults() {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	flattenDefaults("", tree)

	// secrets are omitted from the marshaled defaults but must still bind to env
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("gateway.rest.token", "")
}

func flattenDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		// free-form maps are defaulted whole so user files replace them
		if sub, ok := v.(map[string]any); ok && key != "rubric.required_modifiers" {
			flattenDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig resolves defaults, config file, env and flags into one config
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if mockMode {
		cfg.Gateway.Mode = "mock"
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return &cfg, nil
}

func newLogger(cfg *model.Config) *logrus.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}
