// Package mail_tools provides the MCP tools that talk to the mailbox over
// IMAP and SMTP.
//
// Read tools (always registered):
//   - mail-search: search a folder and store the matches as a collection
//   - mail-get-content: read one or more emails
//   - mail-send: send a plain-text email
//   - mail-folders: list mailbox folders
//   - mail-count-daily: count inbox emails per day
//
// Write tools (registered only when write operations are enabled):
//   - mail-move: move emails between folders
//   - mail-delete: move emails to trash or expunge them
//
// mail-search does not return the matches directly. It creates a
// collection with the columns id, from, date and subject and returns the
// collection metadata; the collection tools then filter, page and export
// the rows. Email ids are sequence numbers and are only valid until the
// folder changes.
package mail_tools
