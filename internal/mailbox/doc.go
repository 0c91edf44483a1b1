// Package mailbox implements search, paging and message operations against
// an IMAP mailbox.
//
// A search request is described by a SearchCriteria, compiled into an IMAP
// SEARCH program with Compile, and resolved to a page of message ids. Pages
// are served by ESEARCH PARTIAL (RFC 9394) when the server supports it and
// by a client-side window over a plain SEARCH otherwise; both produce the
// same page for the same mailbox state.
//
// Network access goes through the Session and Provider interfaces. Client
// opens one session per operation, bounds each round-trip with a timeout,
// and always tears the session down. Errors are *Error values whose Kind is
// one of the Err* sentinels.
package mailbox
