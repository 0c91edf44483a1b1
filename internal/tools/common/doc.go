// Package common provides shared utilities for MCP tool implementations:
// argument parsing, JSON and error results, and the instrumentation wrapper
// every tool handler is registered through.
package common
