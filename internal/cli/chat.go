package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	chatSession    string
	chatRecallOnly bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <query>",
	Short: "Assemble hybrid context for a query",
	Long: `Assemble the hybrid context a language model would receive for the
given query: the recent turn window, retrieved conversation and document
snippets, and the grounding instruction. The query is then recorded as a
user turn unless --recall-only is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "default", "session identifier")
	chatCmd.Flags().BoolVar(&chatRecallOnly, "recall-only", false, "do not record the query as a turn")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	query := args[0]
	ctx := cmd.Context()

	hc, err := rt.manager.AssembleContext(ctx, chatSession, query)
	if err != nil {
		return fmt.Errorf("failed to assemble context: %w", err)
	}

	for _, msg := range hc.Messages {
		if msg.Source != "" {
			fmt.Printf("[%s/%s] %s\n", msg.Role, msg.Source, msg.Content)
		} else {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
		}
	}

	fmt.Printf("\nContext type: %s\n", hc.ContextType)
	if hc.Degraded {
		fmt.Println("Warning: context is degraded (a memory source was unavailable)")
	}

	if chatRecallOnly {
		return nil
	}

	if err := rt.manager.StoreMessage(ctx, chatSession, "user", query); err != nil {
		return fmt.Errorf("failed to store turn: %w", err)
	}

	return nil
}
