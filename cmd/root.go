package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "sage",
	Short: "Sage - retrieval-augmented chat in your terminal",
	Long: `Sage answers questions grounded in your own documents. Index files with
"sage ingest", then chat: each prompt is embedded, matched against the
indexed documents, and answered with the relevant passages in context.

Running sage with no arguments starts an interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
