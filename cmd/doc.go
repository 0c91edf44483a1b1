// Package cmd implements the command-line interface for mailmcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server (stdio, sse or streamable-http)
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Mailbox credentials and server settings are read from the environment
// and an optional .env file; see the config package for the variable names.
package cmd
