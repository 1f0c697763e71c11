package main

import (
	"github.com/spf13/cobra"

	"github.com/codeneeth/neethos-chat/internal/delivery/tui"
)

var chatLogFile string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{withAI: true, logFile: chatLogFile})
		if err != nil {
			return err
		}
		defer a.Close()

		return tui.Run(ctx, a.chat, conversationID, a.themes.Lookup(a.themes.DefaultName()), a.log)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "neethos-chat.log", "Where the terminal client writes its logs")
}
