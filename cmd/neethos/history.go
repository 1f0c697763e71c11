package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
)

var historyWidth int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored messages of a conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		msgs, err := a.chat.History(cmd.Context(), conversationID)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "conversation %q has no messages\n", conversationID)
			return nil
		}
		renderHistory(cmd.OutOrStdout(), msgs, historyWidth)
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List stored conversation ids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.chat.Conversations(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyWidth, "width", 80, "Column width for message text")
}

func renderHistory(w io.Writer, msgs []entity.Message, width int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Role", "Time", "Text"})
	table.SetAutoWrapText(true)
	table.SetColWidth(width)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetRowLine(false)

	for i, m := range msgs {
		table.Append([]string{
			strconv.Itoa(i + 1),
			string(m.Role),
			m.Timestamp.Local().Format("2006-01-02 15:04"),
			m.Text,
		})
	}
	table.Render()
}
