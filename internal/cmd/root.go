package cmd

import (
	"context"
	"strings"

	cfgcmd "github.com/Iron-Ham/atkrun/internal/cmd/config"
	"github.com/Iron-Ham/atkrun/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "atkrun",
	Short: "Drive a simulation engine through its HTTP bridge",
	Long: `atkrun sends scripted command batches to a simulation engine through
the engine's HTTP bridge. Each batch opens one bridge session, runs every
command in order, classifies each result from the returned callback trace,
and closes the session.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx. Canceling ctx stops a
// running batch; the bridge session is still closed.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/atkrun/config.yaml)")
	rootCmd.PersistentFlags().String("bridge", "", "bridge base URL (overrides bridge.base_url)")
	bindFlags()

	cfgcmd.Register(rootCmd)
}

// bindFlags connects global flags to viper keys.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("bridge.base_url", rootCmd.PersistentFlags().Lookup("bridge"))
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
		viper.AddConfigPath("$HOME/.config/atkrun")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ATKRUN")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ATKRUN_BRIDGE_BASE_URL for bridge.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
