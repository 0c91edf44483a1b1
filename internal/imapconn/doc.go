// Package imapconn implements mailbox.Provider and mailbox.Session on top of
// go-imap v1.
//
// Each Open dials, upgrades to TLS as configured and logs in. Concurrent
// sessions are bounded by a weighted semaphore and logins are paced by a
// token bucket so that bursts of tool calls do not trip provider lockouts.
//
// SEARCH programs arrive as text produced by mailbox.Compile and are sent
// as raw commands, which is also how ESEARCH PARTIAL (RFC 9394) is issued:
// go-imap has no typed API for either.
package imapconn
