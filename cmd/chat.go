package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"habitcoach/config"
	"habitcoach/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat screen",
	Long: `Open the chat screen. The model for the saved backend starts loading
right away; switch backends with Ctrl+T and quit with Ctrl+C or Esc.
Key bindings can be changed in keybindings.toml in the data directory.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	keys, err := config.LoadKeybindings(a.cfg.DataDir())
	if err != nil {
		a.logger.Warn("using default keybindings", zap.Error(err))
		keys = config.DefaultKeybindings()
	}

	view := ui.NewChatView(cmd.Context(), a.dispatcher, ui.ChatOptions{
		Keys:          keys,
		PromptContext: promptContext,
		Logger:        a.logger,
	})

	p := tea.NewProgram(view, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}
