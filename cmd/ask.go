package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"habitcoach/coach"
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask the coach once and print the reply",
	Long: `Load the model for the saved backend, send one prompt and print the
reply. The model is released before the command exits.`,
	Example: `  habitcoach ask "I want a cookie"
  habitcoach ask --context "cutting back on sugar" "it's 3pm and I'm tired"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		reply, err := askOnce(cmd.Context(), a.dispatcher, strings.Join(args, " "), promptContext)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// askOnce loads the active backend, generates one reply and unloads.
func askOnce(ctx context.Context, d *coach.Dispatcher, prompt, promptContext string) (string, error) {
	defer d.Unload(context.WithoutCancel(ctx))

	d.LoadModel(ctx)
	snap := d.Snapshot()
	if !snap.Loaded {
		if snap.Error != "" {
			return "", errors.New(snap.Error)
		}
		return "", fmt.Errorf("the %s backend did not load", snap.Mode)
	}
	return d.GenerateResponse(ctx, prompt, promptContext), nil
}
