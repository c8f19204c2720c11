package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Index a file or directory into the knowledge base",
	Long: `Ingest reads local files, embeds their content, and stores the vectors so
chat can retrieve them. Directories are walked recursively, honoring a
.gitignore at the directory root. Re-ingesting a file replaces its previous
version.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List indexed files",
		RunE:  runIngestList,
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "remove <path>",
		Short: "Remove an indexed file",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestRemove,
	})
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		if err := a.indexer.AddFile(ctx, path); err != nil {
			return err
		}
		fmt.Printf("Indexed %s\n", path)
		return nil
	}

	result, err := a.indexer.AddDirectory(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d files (%d skipped, %d failed, %d bytes) in %s\n",
		result.FilesAdded, result.FilesSkipped, result.FilesFailed,
		result.TotalSize, result.Duration.Round(1e6))
	return nil
}

func runIngestList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.indexer.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No files indexed yet. Add some with: sage ingest <path>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSIZE\tINDEXED")
	for _, doc := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			doc.Metadata["file_path"], doc.Metadata["file_size"], doc.Metadata["indexed_at"])
	}
	return w.Flush()
}

func runIngestRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.indexer.RemoveFile(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}
