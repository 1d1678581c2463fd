package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active sessions",
	Long:  `List sessions that still have unexpired short-term turns.`,
	RunE:  runSessions,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session> <name>",
	Short: "Set a display name for a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionsRename,
}

var clearCmd = &cobra.Command{
	Use:   "clear <session>",
	Short: "Clear a session's short-term window",
	Long: `Delete a session's short-term turns. Long-term conversation records
are kept and remain retrievable.`,
	Args: cobra.ExactArgs(1),
	RunE: runClear,
}

var statsCmd = &cobra.Command{
	Use:   "stats <session>",
	Short: "Show memory statistics for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	sessionsCmd.AddCommand(sessionsRenameCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions, err := rt.manager.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tNAME\tMESSAGES\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			s.SessionID, s.DisplayName, s.MessageCount,
			s.LastMessageAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.manager.RenameSession(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}

	fmt.Printf("Session %s renamed to %q\n", args[0], args[1])
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.manager.ClearSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	fmt.Printf("Session %s cleared (long-term records kept)\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.manager.SessionStats(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Session: %s\n", stats.SessionID)
	fmt.Printf("Short-term messages: %d\n", stats.ShortTermMessages)
	fmt.Printf("Long-term records: %d\n", stats.LongTermRecords)
	return nil
}
