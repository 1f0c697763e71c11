package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	envFile        string
	conversationID string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "neethos",
	Short: "NeethOs AI chat backed by Gemini",
	Long: `NeethOs AI is a chat assistant that forwards each message to Google Gemini
and keeps an append-only history per conversation.

Run "neethos serve" for the web page, API and Telegram bot, or "neethos chat"
for the terminal client.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
	rootCmd.PersistentFlags().StringVarP(&conversationID, "conversation", "c", "local", "Conversation id used by chat, history, export and import")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
