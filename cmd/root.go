package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var promptContext string

// rootCmd runs the chat screen when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "habitcoach",
	Short: "A habit coach that runs on-device or in the cloud",
	Long: `habitcoach answers cravings and habit questions with short coaching
replies. Replies come from a small model in the local Ollama runtime or from
the coach API, and you can switch between the two at any time.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&promptContext, "context", "", "habit or situation sent along with every prompt")
}

// initConfig binds HABITCOACH_* environment variables for the settings that
// are read through viper. The TOML files are handled by the config package.
func initConfig() {
	viper.SetEnvPrefix("HABITCOACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}
