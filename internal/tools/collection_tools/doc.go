// Package collection_tools provides the MCP tools that post-process
// collections created by mail-search: mail-update, mail-fetch, mail-list,
// mail-preview, mail-combine, mail-history and mail-drop.
//
// Example session:
//
//	mail-search(sender: "github.com", start_date: "2024-05-01")
//	mail-update(collection_id: "…", operation: "domain from as sender | group sender")
//	mail-fetch(collection_id: "…", format: "csv")
package collection_tools
