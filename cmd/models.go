package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"habitcoach/config"
	"habitcoach/ollama"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the local backend can run",
	Long: `List the local model catalog. The entry the configured model resolves
to is marked with *, and models already pulled into the Ollama runtime are
flagged when the runtime is reachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		selected, err := ollama.LookupModel(cfg.User.Local.Model)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}

		pulled := map[string]bool{}
		client, err := ollama.NewClient(cfg.User.Local.Host, nil)
		if err == nil {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			infos, listErr := client.ListModels(ctx)
			cancel()
			if listErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Ollama runtime at %s is not reachable\n", client.BaseURL())
			}
			for _, info := range infos {
				pulled[info.Name] = true
			}
		}

		return printCatalog(cmd.OutOrStdout(), selected.Name, pulled)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func printCatalog(w io.Writer, selected string, pulled map[string]bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tMODEL\tSIZE\tPULLED")
	for _, entry := range ollama.Catalog {
		mark := ""
		if entry.Name == selected {
			mark = "*"
		}
		state := ""
		if pulled[entry.Name] {
			state = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d MB\t%s\n", mark, entry.DisplayName, entry.Name, entry.SizeMB, state)
	}
	return tw.Flush()
}
