package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the shared index",
	Long: `Segment one or more text files into chunks, embed them, and add
them to the shared document index. Supported formats: plain text and
Markdown.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, path := range args {
		result, err := rt.manager.IngestFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		fmt.Printf("Ingested %s: document %s (%d chunks)\n", result.Name, result.DocID, result.Chunks)
	}

	return nil
}
