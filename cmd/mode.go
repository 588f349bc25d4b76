package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"habitcoach/config"
	"habitcoach/model"
)

var modeCmd = &cobra.Command{
	Use:       "mode [local|cloud]",
	Short:     "Show or set the backend used for replies",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(model.ModeLocal), string(model.ModeCloud)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		prefs := config.NewPreferenceFile(cfg.DataDir())

		if len(args) == 0 {
			mode, err := prefs.LoadMode()
			if err != nil {
				return fmt.Errorf("failed to read backend preference: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		}

		mode, err := model.ParseBackendMode(args[0])
		if err != nil {
			return err
		}
		if err := prefs.SaveMode(mode); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backend set to %s\n", mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modeCmd)
}
