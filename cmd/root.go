// Package cmd contains the CLI entrypoints.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "ragchat - retrieval-augmented chat over your CSV documents",
	Long: `ragchat serves a REST API for document-grounded conversations.

Upload CSV files, then ask questions: answers are generated by Gemini
and grounded in the most relevant chunks of your documents. Conversations
keep per-session history in PostgreSQL.

Running ragchat without a subcommand starts the API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
