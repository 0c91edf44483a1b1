package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailmcp application
var rootCmd = &cobra.Command{
	Use:   "mailmcp",
	Short: "MCP server for IMAP/SMTP mailboxes",
	Long: `mailmcp exposes an IMAP/SMTP mailbox to AI assistants over the
Model Context Protocol (MCP).

Search results are stored as collections that can be filtered, grouped,
combined and exported without going back to the mail server.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailmcp version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
